package api

import (
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	urlParamId      = "id"
	urlParamChannel = "ch"
	indentationChar = "  "

	namespace = "qadc2go"
)

type (
	Result struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
)

// CreateRestService builds the REST API over the given instances. Request
// metrics are registered with registerer.
func CreateRestService(instances *Registry, registerer prometheus.Registerer) *echo.Echo {
	echoRest := echo.New()
	echoRest.HideBanner = true
	echoRest.HidePort = true

	// Root level middleware
	echoRest.Pre(middleware.AddTrailingSlash())

	echoRest.Use(middleware.Secure())
	echoRest.Use(middleware.Recover())
	echoRest.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  namespace,
		Subsystem:  "api",
		Registerer: registerer,
	}))

	echoRest.GET("/alive/", isAlive)

	registerQadcEndpoints(echoRest, instances)

	return echoRest
}

// returns an empty "ok" answer
func isAlive(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// return a "not found" message
func returnNotFound(c echo.Context, id string) (err error) {
	return c.JSONPretty(http.StatusNotFound, &Result{
		Name:    "Not found",
		Message: "No item with id '" + id + "' found",
	}, indentationChar)
}

func returnBadRequest(c echo.Context, message string) (err error) {
	return c.JSONPretty(http.StatusBadRequest, &Result{
		Name:    "Bad request",
		Message: message,
	}, indentationChar)
}

// return a "conflict" message for commands the worker refused
func returnRejected(c echo.Context, message string) (err error) {
	return c.JSONPretty(http.StatusConflict, &Result{
		Name:    "Rejected",
		Message: message,
	}, indentationChar)
}

func returnUnavailable(c echo.Context, e error) (err error) {
	return c.JSONPretty(http.StatusServiceUnavailable, &Result{
		Name:    "Unavailable",
		Message: e.Error(),
	}, indentationChar)
}
