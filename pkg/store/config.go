// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"encoding/json"
	"fmt"
)

// Button types
const (
	TypeKey     = "key"
	TypeToggle  = "toggle"
	TypeGoto    = "goto"
	TypeCounter = "counter"
	TypeTimer   = "timer"
	TypeText    = "text"
	TypeApp     = "app"
	TypeScript  = "script"
	TypeWebsite = "website"
	TypeMedia   = "media"
	TypeSound   = "sound"
	TypeMouse   = "mouse"
)

// Profile describes a supported deck screen.
type Profile struct {
	Width, Height int
	Cell          int
	MaxCols       int
	MaxRows       int
	Name          string
}

// DefaultResolution is used when the configured one is unknown.
const DefaultResolution = "800x480"

// Profiles lists the supported screens by resolution key.
var Profiles = map[string]Profile{
	"800x480_7": {Width: 800, Height: 480, Cell: 90, MaxCols: 8, MaxRows: 4, Name: "800x480 (7 inch)"},
	"800x480":   {Width: 800, Height: 480, Cell: 110, MaxCols: 6, MaxRows: 3, Name: "800x480 (5 inch)"},
	"480x320":   {Width: 480, Height: 320, Cell: 70, MaxCols: 5, MaxRows: 3, Name: "480x320 (3.5 inch)"},
}

// Config is the whole deck configuration edited by the user.
type Config struct {
	DeviceName        string          `json:"deviceName"`
	Wifi              Wifi            `json:"wifi"`
	Theme             Theme           `json:"theme"`
	Device            Device          `json:"device"`
	Grid              Grid            `json:"grid"`
	PageCount         int             `json:"pageCount"`
	CurrentPage       int             `json:"currentPage"`
	PageNames         []string        `json:"pageNames"`
	Pages             [][]*Button     `json:"pages"`
	DeviceSettings    *DeviceSettings `json:"deviceSettings,omitempty"`
	IconSource        string          `json:"iconSource,omitempty"`
	NotificationSound string          `json:"notificationSound,omitempty"`
}

type Wifi struct {
	SSID string `json:"ssid"`
	Pass string `json:"pass"`
}

// Theme colors are hex strings without '#'.
type Theme struct {
	Bg     string `json:"bg"`
	Btn    string `json:"btn"`
	Text   string `json:"text"`
	Stroke string `json:"stroke"`
	Shadow string `json:"shadow"`
}

type Device struct {
	Resolution string `json:"resolution"`
}

type Grid struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// DeviceSettings are pushed to the deck over the live connection.
type DeviceSettings struct {
	Brightness   int  `json:"brightness"`
	SleepEnabled bool `json:"sleepEnabled"`
	SleepMinutes int  `json:"sleepMinutes"`
}

// DefaultDeviceSettings returns full brightness with sleep off.
func DefaultDeviceSettings() DeviceSettings {
	return DeviceSettings{Brightness: 100, SleepEnabled: false, SleepMinutes: 5}
}

// UnmarshalJSON fills fields missing from the blob with defaults.
func (d *DeviceSettings) UnmarshalJSON(b []byte) error {
	type plain DeviceSettings
	p := plain(DefaultDeviceSettings())
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = DeviceSettings(p)
	return nil
}

// SleepValue is the SET_SLEEP argument: minutes, or 0 when disabled.
func (d DeviceSettings) SleepValue() int {
	if !d.SleepEnabled {
		return 0
	}
	return d.SleepMinutes
}

// Button is one grid cell. Only the fields relevant to Type are used.
type Button struct {
	Type  string `json:"type,omitempty"`
	Label string `json:"label,omitempty"`
	Icon  string `json:"icon,omitempty"`

	Combo             string       `json:"combo,omitempty"`
	GotoPage          int          `json:"gotoPage,omitempty"`
	CounterStartValue int          `json:"counterStartValue,omitempty"`
	CounterAction     string       `json:"counterAction,omitempty"`
	TimerDuration     int          `json:"timerDuration,omitempty"`
	ToggleState       bool         `json:"toggleState,omitempty"`
	ToggleData        *ToggleData  `json:"toggleData,omitempty"`
	AppPath           string       `json:"appPath,omitempty"`
	CustomScript      string       `json:"customScript,omitempty"`
	WebsiteURL        string       `json:"websiteUrl,omitempty"`
	MediaAction       string       `json:"mediaAction,omitempty"`
	TextMacro         string       `json:"textMacro,omitempty"`
	TextSimulate      bool         `json:"textSimulateTyping,omitempty"`
	SoundPath         string       `json:"soundPath,omitempty"`
	SoundVolume       *int         `json:"soundVolume,omitempty"`
	MouseConfig       *MouseConfig `json:"mouseConfig,omitempty"`

	BtnBgColor string `json:"btnBgColor,omitempty"`
	LabelColor string `json:"labelColor,omitempty"`
	IconColor  string `json:"iconColor,omitempty"`
}

// ToggleData holds the two-state settings of a toggle button.
// OffCombo runs when switching on, OnCombo when switching off.
type ToggleData struct {
	IconOn      string `json:"iconOn,omitempty"`
	OnColor     string `json:"onColor,omitempty"`
	OnIconColor string `json:"onIconColor,omitempty"`
	OffCombo    string `json:"offCombo,omitempty"`
	OnCombo     string `json:"onCombo,omitempty"`
	UseSound    bool   `json:"useSound,omitempty"`
}

type MouseConfig struct {
	Event  string `json:"event"`
	Button string `json:"button"`
	X1     int    `json:"x1"`
	Y1     int    `json:"y1"`
	X2     int    `json:"x2"`
	Y2     int    `json:"y2"`
}

// Filled reports whether the cell has any appearance or action.
func (b *Button) Filled() bool {
	if b == nil {
		return false
	}
	if b.Icon != "" || b.Label != "" {
		return true
	}
	switch b.Type {
	case TypeGoto, TypeCounter:
		return true
	case TypeKey:
		return b.Combo != ""
	case TypeText:
		return b.TextMacro != ""
	case TypeApp:
		return b.AppPath != ""
	case TypeScript:
		return b.CustomScript != ""
	case TypeWebsite:
		return b.WebsiteURL != ""
	case TypeMedia:
		return b.MediaAction != ""
	case TypeTimer:
		return b.TimerDuration > 0
	case TypeMouse:
		m := b.MouseConfig
		return m != nil && (m.Event != "click" || m.Button != "left" || m.X1 != 0 || m.Y1 != 0 || m.X2 != 0 || m.Y2 != 0)
	}
	return false
}

// IsToggle reports whether the button keeps an on/off state.
func (b *Button) IsToggle() bool {
	return b != nil && b.Type == TypeToggle
}

// DisplayLabel returns the label, or "Button N" for button index idx.
func (b *Button) DisplayLabel(idx int) string {
	if b != nil && b.Label != "" {
		return b.Label
	}
	return fmt.Sprintf("Button %d", idx+1)
}

// EnsureDefaults fills every missing field and clamps the grid and page
// indices to the configured screen profile.
func (c *Config) EnsureDefaults() {
	if c.Theme.Bg == "" {
		c.Theme.Bg = "101010"
	}
	if c.Theme.Btn == "" {
		c.Theme.Btn = "202020"
	}
	if c.Theme.Text == "" {
		c.Theme.Text = "FFFFFF"
	}
	if c.Theme.Stroke == "" {
		c.Theme.Stroke = "555555"
	}
	if c.Theme.Shadow == "" {
		c.Theme.Shadow = "000000"
	}

	if c.DeviceSettings == nil {
		ds := DefaultDeviceSettings()
		c.DeviceSettings = &ds
	}

	if _, ok := Profiles[c.Device.Resolution]; !ok {
		c.Device.Resolution = DefaultResolution
	}
	profile := c.Profile()
	if c.Grid.Cols <= 0 {
		c.Grid.Cols = profile.MaxCols
	}
	if c.Grid.Rows <= 0 {
		c.Grid.Rows = profile.MaxRows
	}
	c.Grid.Cols = min(c.Grid.Cols, profile.MaxCols)
	c.Grid.Rows = min(c.Grid.Rows, profile.MaxRows)

	c.PageCount = max(1, c.PageCount, len(c.Pages))
	for len(c.Pages) < c.PageCount {
		c.Pages = append(c.Pages, nil)
	}
	c.CurrentPage = max(0, min(c.CurrentPage, c.PageCount-1))

	for len(c.PageNames) < c.PageCount {
		c.PageNames = append(c.PageNames, "")
	}
	c.PageNames = c.PageNames[:c.PageCount]
}

// Profile returns the screen profile for the configured resolution.
func (c *Config) Profile() Profile {
	if p, ok := Profiles[c.Device.Resolution]; ok {
		return p
	}
	return Profiles[DefaultResolution]
}

// ButtonsPerPage is the grid size.
func (c *Config) ButtonsPerPage() int {
	return c.Grid.Cols * c.Grid.Rows
}

// HasPage reports whether page is a valid page index.
func (c *Config) HasPage(page int) bool {
	return page >= 0 && page < len(c.Pages)
}

// Button returns the button at (page, idx), or nil for an empty or
// out-of-range cell.
func (c *Config) Button(page, idx int) *Button {
	if !c.HasPage(page) || idx < 0 || idx >= len(c.Pages[page]) {
		return nil
	}
	return c.Pages[page][idx]
}

// PageName returns the page's name, or "Page N".
func (c *Config) PageName(page int) string {
	if page >= 0 && page < len(c.PageNames) && c.PageNames[page] != "" {
		return c.PageNames[page]
	}
	return fmt.Sprintf("Page %d", page+1)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	raw, err := json.Marshal(c)
	if err != nil {
		panic(fmt.Sprintf("store: clone config: %v", err))
	}
	out := &Config{}
	if err := json.Unmarshal(raw, out); err != nil {
		panic(fmt.Sprintf("store: clone config: %v", err))
	}
	return out
}
