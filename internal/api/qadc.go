package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/qadc2go/internal/control"
	"github.com/markusressel/qadc2go/internal/lut"
	"github.com/markusressel/qadc2go/internal/scheduler"
	"github.com/qdm12/reprint"
)

// CommandTimeout bounds how long a request waits for the worker to pick up
// and answer a command.
var CommandTimeout = 5 * time.Second

type InstanceView struct {
	Id      string          `json:"id"`
	Type    string          `json:"type"`
	Results []uint16        `json:"results"`
	Stats   scheduler.Stats `json:"stats"`
}

type ChannelView struct {
	Instance  string                 `json:"instance"`
	Channel   int                    `json:"channel"`
	Result    uint16                 `json:"result"`
	Stats     scheduler.ChannelStats `json:"stats"`
	Direction string                 `json:"direction,omitempty"`
}

type CommandView struct {
	Instance string `json:"instance"`
	Command  string `json:"command"`
	Status   uint32 `json:"status"`
}

func registerQadcEndpoints(rest *echo.Echo, instances *Registry) {
	h := &qadcHandler{instances: instances}

	group := rest.Group("/qadc")

	group.GET("/", h.getInstances)
	group.GET("/:"+urlParamId+"/", h.getInstance)
	group.GET("/:"+urlParamId+"/channel/:"+urlParamChannel+"/", h.getChannel)
	group.GET("/:"+urlParamId+"/channel/:"+urlParamChannel+"/direction/", h.getDirection)
	group.POST("/:"+urlParamId+"/calibration/start/", h.command(control.OpCalibrationStart))
	group.POST("/:"+urlParamId+"/calibration/finish/", h.command(control.OpCalibrationFinish))
	group.POST("/:"+urlParamId+"/conversion/start/", h.command(control.OpStart))
	group.POST("/:"+urlParamId+"/conversion/stop/", h.command(control.OpStop))
}

type qadcHandler struct {
	instances *Registry
}

// returns a list of all running instances
func (h *qadcHandler) getInstances(c echo.Context) error {
	data := []InstanceView{}
	for _, instance := range h.instances.List() {
		data = append(data, view(instance))
	}
	return c.JSONPretty(http.StatusOK, reprint.This(data), indentationChar)
}

func (h *qadcHandler) getInstance(c echo.Context) error {
	id := c.Param(urlParamId)
	instance, exists := h.instances.Get(id)
	if !exists {
		return returnNotFound(c, id)
	}
	return c.JSONPretty(http.StatusOK, reprint.This(view(instance)), indentationChar)
}

func (h *qadcHandler) getChannel(c echo.Context) error {
	instance, ch, err := h.lookupChannel(c)
	if instance == nil {
		return err
	}
	current := view(instance)
	data := ChannelView{
		Instance: instance.Id,
		Channel:  ch,
		Result:   current.Results[ch],
		Stats:    current.Stats.Channels[ch],
	}
	return c.JSONPretty(http.StatusOK, data, indentationChar)
}

func (h *qadcHandler) getDirection(c echo.Context) error {
	instance, ch, err := h.lookupChannel(c)
	if instance == nil {
		return err
	}
	if instance.Control == nil {
		return returnRejected(c, fmt.Sprintf("QADC '%s' does not accept commands", instance.Id))
	}

	status, err := send(c.Request().Context(), instance, control.Direction(ch))
	if err != nil {
		return returnUnavailable(c, err)
	}
	if status == control.StatusInvalid {
		return returnRejected(c, fmt.Sprintf("QADC '%s' has no direction for channel %d", instance.Id, ch))
	}

	data := ChannelView{
		Instance:  instance.Id,
		Channel:   ch,
		Direction: lut.Direction(status).String(),
	}
	return c.JSONPretty(http.StatusOK, data, indentationChar)
}

// command returns a handler sending a command without operand
func (h *qadcHandler) command(op control.Opcode) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param(urlParamId)
		instance, exists := h.instances.Get(id)
		if !exists {
			return returnNotFound(c, id)
		}
		if instance.Control == nil {
			return returnRejected(c, fmt.Sprintf("QADC '%s' does not accept commands", id))
		}

		cmd := control.Command{Op: op}
		status, err := send(c.Request().Context(), instance, cmd)
		if err != nil {
			return returnUnavailable(c, err)
		}
		if status == control.StatusInvalid {
			return returnRejected(c, fmt.Sprintf("QADC '%s' rejected command %s", id, cmd))
		}
		return c.JSONPretty(http.StatusOK, &CommandView{
			Instance: id,
			Command:  cmd.String(),
			Status:   status,
		}, indentationChar)
	}
}

// lookupChannel resolves the instance and channel of the request. If the
// returned instance is nil, an error response has already been written.
func (h *qadcHandler) lookupChannel(c echo.Context) (*Instance, int, error) {
	id := c.Param(urlParamId)
	instance, exists := h.instances.Get(id)
	if !exists {
		return nil, 0, returnNotFound(c, id)
	}

	param := c.Param(urlParamChannel)
	ch, err := strconv.Atoi(param)
	if err != nil || ch < 0 {
		return nil, 0, returnBadRequest(c, fmt.Sprintf("invalid channel '%s'", param))
	}
	if ch >= len(instance.Scheduler.Stats().Channels) {
		return nil, 0, returnNotFound(c, id+"/"+param)
	}
	return instance, ch, nil
}

func view(instance *Instance) InstanceView {
	stats := instance.Scheduler.Stats()
	var results []uint16
	if instance.Board != nil {
		results = instance.Board.Snapshot()
	} else {
		results = make([]uint16, len(stats.Channels))
		for ch, channel := range stats.Channels {
			results[ch] = channel.Result
		}
	}
	return InstanceView{
		Id:      instance.Id,
		Type:    instance.Type,
		Results: results,
		Stats:   stats,
	}
}

func send(ctx context.Context, instance *Instance, cmd control.Command) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()
	status, err := instance.Control.Send(ctx, cmd)
	if errors.Is(err, context.DeadlineExceeded) {
		return 0, fmt.Errorf("QADC '%s' did not answer %s in time", instance.Id, cmd)
	}
	return status, err
}
