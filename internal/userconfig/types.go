// Package userconfig persists the dashboard layout and per-component
// settings, and reconciles the layout against the component registry.
package userconfig

import (
	"github.com/kingrea/smart-mirror/internal/component"
)

// Area is a screen region of the dashboard grid.
type Area string

const (
	AreaTopLeft       Area = "top-left"
	AreaTopCenter     Area = "top-center"
	AreaTopRight      Area = "top-right"
	AreaMiddleLeft    Area = "middle-left"
	AreaMiddleRight   Area = "middle-right"
	AreaCenter        Area = "center"
	AreaBottomLeft    Area = "bottom-left"
	AreaBottomCenter  Area = "bottom-center"
	AreaBottomRight   Area = "bottom-right"
	AreaNotifications Area = "notifications"
	AreaCustom        Area = "custom"
)

// Areas lists every region in grid order.
var Areas = []Area{
	AreaTopLeft, AreaTopCenter, AreaTopRight,
	AreaMiddleLeft, AreaCenter, AreaMiddleRight,
	AreaBottomLeft, AreaBottomCenter, AreaBottomRight,
	AreaNotifications, AreaCustom,
}

// DefaultArea is where newly discovered components are placed.
const DefaultArea = AreaTopLeft

// Valid reports whether a is a known region.
func (a Area) Valid() bool {
	for _, known := range Areas {
		if a == known {
			return true
		}
	}
	return false
}

// Next returns the region after a, wrapping around.
func (a Area) Next() Area {
	for i, known := range Areas {
		if a == known {
			return Areas[(i+1)%len(Areas)]
		}
	}
	return Areas[0]
}

// DashboardComponentConfig places one component on the dashboard.
type DashboardComponentConfig struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
	Area    Area   `json:"area"`
}

// Dashboard is the layout section of UserConfig.
type Dashboard struct {
	Components []DashboardComponentConfig `json:"components"`
}

// UserConfig is the persisted user configuration.
type UserConfig struct {
	Dashboard  Dashboard                     `json:"dashboard"`
	Components map[string]component.Settings `json:"components"`
}

// Patch is a partial update applied with Merge. Nil sections are left as
// they are.
type Patch struct {
	Dashboard  *Dashboard                    `json:"dashboard,omitempty"`
	Components map[string]component.Settings `json:"components,omitempty"`
}

// DefaultConfig returns the first-run layout.
func DefaultConfig() UserConfig {
	return UserConfig{
		Dashboard: Dashboard{Components: []DashboardComponentConfig{
			{ID: "clock", Enabled: true, Area: AreaTopLeft},
			{ID: "calendar", Enabled: true, Area: AreaTopLeft},
			{ID: "system-stats", Enabled: true, Area: AreaBottomRight},
			{ID: "wifi-qr-code", Enabled: true, Area: AreaBottomLeft},
			{ID: "events", Enabled: true, Area: AreaCenter},
			{ID: "greetings", Enabled: true, Area: AreaCenter},
		}},
		Components: map[string]component.Settings{},
	}
}

// Clone returns a copy that shares no slices or maps with c. Nested values
// inside settings are shared.
func (c UserConfig) Clone() UserConfig {
	out := UserConfig{
		Dashboard:  Dashboard{Components: make([]DashboardComponentConfig, len(c.Dashboard.Components))},
		Components: make(map[string]component.Settings, len(c.Components)),
	}
	copy(out.Dashboard.Components, c.Dashboard.Components)
	for id, settings := range c.Components {
		out.Components[id] = cloneSettings(settings)
	}
	return out
}

// Entry returns the dashboard entry for id.
func (c UserConfig) Entry(id string) (DashboardComponentConfig, bool) {
	for _, entry := range c.Dashboard.Components {
		if entry.ID == id {
			return entry, true
		}
	}
	return DashboardComponentConfig{}, false
}

// Merge applies p over c. A patch dashboard replaces the whole list; patch
// component settings replace the stored settings of the same id.
func Merge(c UserConfig, p Patch) UserConfig {
	out := c.Clone()
	if p.Dashboard != nil && p.Dashboard.Components != nil {
		out.Dashboard.Components = append([]DashboardComponentConfig(nil), p.Dashboard.Components...)
	}
	for id, settings := range p.Components {
		out.Components[id] = cloneSettings(settings)
	}
	return out
}

func cloneSettings(s component.Settings) component.Settings {
	if s == nil {
		return nil
	}
	out := make(component.Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
