package api

import (
	"sort"

	"github.com/markusressel/qadc2go/internal/control"
	"github.com/markusressel/qadc2go/internal/qadc"
	"github.com/markusressel/qadc2go/internal/scheduler"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// StatsSource is implemented by scheduler.Scheduler.
type StatsSource interface {
	Stats() scheduler.Stats
}

// Instance is a running QADC worker as seen by the API.
type Instance struct {
	Id        string
	Type      string
	Scheduler StatsSource
	// Control is used for commands. Without it the instance is read only.
	Control *control.Channel
	// Board holds the published results. Without it results are taken
	// from the scheduler statistics.
	Board *qadc.Board
}

// Registry holds all instances served by the API.
type Registry struct {
	instances cmap.ConcurrentMap[string, *Instance]
}

func NewRegistry() *Registry {
	return &Registry{
		instances: cmap.New[*Instance](),
	}
}

func (r *Registry) Add(instance *Instance) {
	r.instances.Set(instance.Id, instance)
}

func (r *Registry) Remove(id string) {
	r.instances.Remove(id)
}

func (r *Registry) Get(id string) (*Instance, bool) {
	return r.instances.Get(id)
}

// List returns all instances ordered by id.
func (r *Registry) List() []*Instance {
	items := r.instances.Items()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]*Instance, 0, len(ids))
	for _, id := range ids {
		result = append(result, items[id])
	}
	return result
}

func (r *Registry) Count() int {
	return r.instances.Count()
}
