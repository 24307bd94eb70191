// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package export builds the file set the deck loads: esp_config.json
// followed by one JPEG per populated button, two for toggles.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Thermoquad/deckhand/pkg/store"
)

// ConfigFileName is the name of the device configuration file.
const ConfigFileName = "esp_config.json"

// Default toggle colors
const (
	DefaultToggleOnColor  = "#2ecc71"
	DefaultToggleOnIcon   = "#ffffff"
	smallScreenResolution = "480x320"
	smallScreenCell       = 80
)

// File is one named payload of the upload set.
type File struct {
	Name string
	Data []byte
}

// ImageRequest describes one button image to render.
type ImageRequest struct {
	Name       string // output file name
	Button     store.Button
	Icon       string // icon reference; data URI, path or empty
	Background string // hex color, with or without '#'
	IconColor  string
	Cell       int // square size in pixels
}

// ImageSource produces JPEG bytes for a button image.
type ImageSource interface {
	Image(ctx context.Context, req ImageRequest) ([]byte, error)
}

// Exporter turns the current configuration into the upload set.
type Exporter struct {
	config func() *store.Config
	images ImageSource
	log    *zap.SugaredLogger
}

// New creates an exporter. config is called once per export and must
// return a configuration the exporter may read freely.
func New(config func() *store.Config, images ImageSource, log *zap.SugaredLogger) *Exporter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Exporter{config: config, images: images, log: log}
}

type espConfig struct {
	Title *string   `json:"title"`
	Wifi  espWifi   `json:"wifi"`
	Theme espTheme  `json:"theme"`
	Grid  espGrid   `json:"grid"`
	Pages []espPage `json:"pages"`
}

type espWifi struct {
	SSID string `json:"ssid"`
	Pass string `json:"pass"`
}

type espTheme struct {
	BgColor     string `json:"bg_color"`
	BtnColor    string `json:"btn_color"`
	TextColor   string `json:"text_color"`
	StrokeColor string `json:"stroke_color"`
	ShadowColor string `json:"shadow_color"`
}

type espGrid struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type espPage struct {
	Name    string       `json:"name"`
	Buttons []*espButton `json:"buttons"`
}

type espButton struct {
	Icon              string     `json:"icon"`
	Type              string     `json:"type"`
	Combo             string     `json:"combo,omitempty"`
	Page              *int       `json:"page,omitempty"`
	CounterStartValue *int       `json:"counterStartValue,omitempty"`
	CounterAction     string     `json:"counterAction,omitempty"`
	Duration          *int       `json:"duration,omitempty"`
	ToggleData        *espToggle `json:"toggleData,omitempty"`
	BtnColor          string     `json:"btnColor,omitempty"`
	LabelColor        string     `json:"labelColor,omitempty"`
}

type espToggle struct {
	IconOff string `json:"iconOff"`
	IconOn  string `json:"iconOn"`
	OnColor string `json:"onColor"`
}

// Export returns esp_config.json first, then every image in button order.
// Image failures do not stop the export early; all failing files are
// reported together.
func (e *Exporter) Export(ctx context.Context) ([]File, error) {
	cfg := e.config()
	if cfg == nil {
		return nil, errors.New("no configuration loaded")
	}
	cfg.EnsureDefaults()

	cell := cfg.Profile().Cell
	if cfg.Device.Resolution == smallScreenResolution {
		cell = smallScreenCell
	}

	doc, images := buildConfig(cfg, cell)
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ConfigFileName, err)
	}
	files := []File{{Name: ConfigFileName, Data: raw}}

	var failed []error
	for _, req := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := e.images.Image(ctx, req)
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", req.Name, err))
			continue
		}
		files = append(files, File{Name: req.Name, Data: data})
	}
	if len(failed) > 0 {
		return nil, fmt.Errorf("render images: %w", errors.Join(failed...))
	}

	e.log.Debugw("export built", "files", len(files), "cell", cell)
	return files, nil
}

// buildConfig lays out the device document and the images it names.
func buildConfig(cfg *store.Config, cell int) (espConfig, []ImageRequest) {
	doc := espConfig{
		Wifi: espWifi{SSID: cfg.Wifi.SSID, Pass: cfg.Wifi.Pass},
		Theme: espTheme{
			BgColor:     cfg.Theme.Bg,
			BtnColor:    cfg.Theme.Btn,
			TextColor:   cfg.Theme.Text,
			StrokeColor: cfg.Theme.Stroke,
			ShadowColor: cfg.Theme.Shadow,
		},
		Grid: espGrid{Cols: cfg.Grid.Cols, Rows: cfg.Grid.Rows},
	}
	if cfg.DeviceName != "" {
		title := cfg.DeviceName
		doc.Title = &title
	}

	var images []ImageRequest
	counter := 0

	for pageIdx, page := range cfg.Pages {
		ep := espPage{Name: cfg.PageName(pageIdx), Buttons: []*espButton{}}

		for _, btn := range page {
			if !btn.Filled() {
				ep.Buttons = append(ep.Buttons, nil)
				continue
			}
			counter++

			base := imageBaseName(btn, counter)
			if base == "" {
				ep.Buttons = append(ep.Buttons, nil)
				continue
			}

			btnColor := btn.BtnBgColor
			if btnColor == "" {
				btnColor = "#" + cfg.Theme.Btn
			}

			if btn.Type == store.TypeToggle {
				offName, onName := base+"_0.jpg", base+"_1.jpg"
				td := btn.ToggleData
				if td == nil {
					td = &store.ToggleData{}
				}

				images = append(images, ImageRequest{
					Name: offName, Button: *btn, Icon: btn.Icon,
					Background: btnColor, IconColor: btn.IconColor, Cell: cell,
				})

				onIcon := btn.Icon
				if td.IconOn != "" {
					onIcon = td.IconOn
				}
				onIconColor := td.OnIconColor
				if onIconColor == "" {
					onIconColor = DefaultToggleOnIcon
				}
				onColor := td.OnColor
				if onColor == "" {
					onColor = DefaultToggleOnColor
				}
				images = append(images, ImageRequest{
					Name: onName, Button: *btn, Icon: onIcon,
					Background: onColor, IconColor: onIconColor, Cell: cell,
				})

				ep.Buttons = append(ep.Buttons, &espButton{
					Icon: offName,
					Type: btn.Type,
					ToggleData: &espToggle{
						IconOff: offName,
						IconOn:  onName,
						OnColor: stripHash(td.OnColor),
					},
					BtnColor:   stripHash(btnColor),
					LabelColor: stripHash(btn.LabelColor),
				})
				continue
			}

			name := base + ".jpg"
			images = append(images, ImageRequest{
				Name: name, Button: *btn, Icon: btn.Icon,
				Background: btnColor, IconColor: btn.IconColor, Cell: cell,
			})
			ep.Buttons = append(ep.Buttons, deviceButton(cfg, btn, name))
		}
		doc.Pages = append(doc.Pages, ep)
	}
	return doc, images
}

func deviceButton(cfg *store.Config, btn *store.Button, icon string) *espButton {
	eb := &espButton{Icon: icon, Type: btn.Type}
	if eb.Type == "" {
		eb.Type = "normal"
	}
	switch btn.Type {
	case store.TypeKey:
		eb.Combo = btn.Combo
	case store.TypeGoto:
		page := btn.GotoPage + 1
		eb.Page = &page
	case store.TypeCounter:
		start := btn.CounterStartValue
		eb.CounterStartValue = &start
		eb.CounterAction = btn.CounterAction
	case store.TypeTimer:
		duration := btn.TimerDuration
		eb.Duration = &duration
		eb.BtnColor = cfg.Theme.Btn
		if btn.BtnBgColor != "" {
			eb.BtnColor = stripHash(btn.BtnBgColor)
		}
		eb.LabelColor = stripHash(btn.LabelColor)
	}
	return eb
}

var unsafeNameChars = strings.NewReplacer(
	":", "_", "/", "_", "\\", "_", "?", "_", "%", "_",
	"*", "_", "|", "_", "\"", "_", "<", "_", ">", "_",
)

// imageBaseName names a button's image: local_N for embedded icons, the
// sanitized icon name plus _N for icon files, text_N for label-only cells.
func imageBaseName(btn *store.Button, n int) string {
	switch {
	case strings.HasPrefix(btn.Icon, "data:"):
		return fmt.Sprintf("local_%d", n)
	case btn.Icon != "":
		base := btn.Icon
		if i := strings.LastIndex(base, "."); i > -1 {
			base = base[:i]
		}
		return fmt.Sprintf("%s_%d", unsafeNameChars.Replace(base), n)
	case btn.Label != "":
		return fmt.Sprintf("text_%d", n)
	}
	return ""
}

func stripHash(color string) string {
	return strings.ReplaceAll(color, "#", "")
}
