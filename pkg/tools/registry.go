package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownTool is returned when a tool name has no registration.
var ErrUnknownTool = errors.New("unknown tool")

// Func is the signature every registered tool implements. Args arrive as
// the planner produced them; results carry at least a "summary" and
// usually a "links" list.
type Func func(ctx context.Context, args map[string]any) (map[string]any, error)

// Registry maps tool names to implementations.
type Registry struct {
	tools map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Func)}
}

// Register adds or replaces a tool under the given name.
func (r *Registry) Register(name string, fn Func) {
	r.tools[name] = fn
}

// Call invokes the named tool.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	fn, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return fn(ctx, args)
}

// Has reports whether a tool name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registered tool names.
const (
	ToolFlightsSearchLinks = "flights_search_links"
	ToolHotelsSearchLinks  = "hotels_search_links"
	ToolThingsToDoLinks    = "things_to_do_links"
	ToolDistanceAndTime    = "distance_and_time"
	ToolWeatherSummary     = "weather_summary"
)

// NewDefaultRegistry wires the standard tool set. The weather client may
// be nil, in which case weather_summary always falls back to search
// links.
func NewDefaultRegistry(weather *WeatherClient) *Registry {
	r := NewRegistry()
	r.Register(ToolFlightsSearchLinks, func(_ context.Context, args map[string]any) (map[string]any, error) {
		return FlightsSearchLinks(stringArg(args, "origin"), stringArg(args, "destination"), stringArg(args, "start_date")), nil
	})
	r.Register(ToolHotelsSearchLinks, func(_ context.Context, args map[string]any) (map[string]any, error) {
		return HotelsSearchLinks(stringArg(args, "destination"), stringArg(args, "start_date"), stringArg(args, "end_date"), stringArg(args, "neighborhood")), nil
	})
	r.Register(ToolThingsToDoLinks, func(_ context.Context, args map[string]any) (map[string]any, error) {
		return ThingsToDoLinks(stringArg(args, "destination"), stringListArg(args, "interests")), nil
	})
	r.Register(ToolDistanceAndTime, func(_ context.Context, args map[string]any) (map[string]any, error) {
		return DistanceAndTime(stringArg(args, "origin"), stringArg(args, "destination"), stringArg(args, "mode")), nil
	})
	r.Register(ToolWeatherSummary, func(ctx context.Context, args map[string]any) (map[string]any, error) {
		if weather == nil {
			weather = NewWeatherClient(nil)
		}
		return weather.Summary(ctx, stringArg(args, "destination"), stringArg(args, "start_date"), stringArg(args, "end_date")), nil
	})
	return r
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	if s, ok := args[key].(string); ok {
		return s
	}
	return ""
}

func stringListArg(args map[string]any, key string) []string {
	if args == nil {
		return nil
	}
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
