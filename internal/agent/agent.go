// Package agent models what a subscribed browser does with a delivered
// payload: how the notification is presented and where a click leads.
package agent

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"
)

const (
	DefaultTitle = "🐦 Storybird"
	DefaultBody  = "Nouvelle activité détectée"
	DefaultIcon  = "/images/logo3.png"
	DefaultURL   = "/"

	NotificationTag = "storybird-notification"

	ActionOpen  = "open"
	ActionClose = "close"
)

// Action is a button shown on the notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Data is the opaque block handed back on click.
type Data struct {
	URL      string `json:"url"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// Presentation is the notification as the browser shows it.
type Presentation struct {
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Icon               string   `json:"icon"`
	Badge              string   `json:"badge"`
	Tag                string   `json:"tag"`
	Renotify           bool     `json:"renotify"`
	RequireInteraction bool     `json:"requireInteraction"`
	Vibrate            []int    `json:"vibrate"`
	Actions            []Action `json:"actions"`
	Data               Data     `json:"data"`
}

type incoming struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Badge string `json:"badge"`
	Data  *Data  `json:"data"`
}

// Present parses a delivered payload. Missing or empty fields fall back to
// defaults and a payload that is not a JSON object yields the default
// notification.
func Present(raw []byte) Presentation {
	p := Presentation{
		Title:    DefaultTitle,
		Body:     DefaultBody,
		Icon:     DefaultIcon,
		Badge:    DefaultIcon,
		Tag:      NotificationTag,
		Renotify: true,
		Vibrate:  []int{200, 100, 200},
		Actions: []Action{
			{Action: ActionOpen, Title: "Voir la vidéo"},
			{Action: ActionClose, Title: "Fermer"},
		},
		Data: Data{URL: DefaultURL},
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return p
	}

	var in incoming
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return p
	}

	p.Title = firstNonEmpty(in.Title, p.Title)
	p.Body = firstNonEmpty(in.Body, p.Body)
	p.Icon = firstNonEmpty(in.Icon, p.Icon)
	p.Badge = firstNonEmpty(in.Badge, p.Badge)
	if in.Data != nil {
		p.Data = *in.Data
	}
	return p
}

// ClickKind is what the agent does after a click.
type ClickKind string

const (
	ClickNone    ClickKind = "none"
	ClickFocus   ClickKind = "focus"
	ClickOpenNew ClickKind = "open"
)

// Window is an open browser window controlled by the agent.
type Window struct {
	ID  string
	URL string
}

// ClickResult describes the reaction to a notification click.
type ClickResult struct {
	Kind     ClickKind
	WindowID string
	URL      string
}

// ResolveClick decides where a click leads. The close action does nothing;
// anything else navigates the first same-origin window to the target or
// opens a new window when none exists.
func ResolveClick(action string, p Presentation, origin string, windows []Window) ClickResult {
	if action == ActionClose {
		return ClickResult{Kind: ClickNone}
	}

	target := firstNonEmpty(p.Data.URL, DefaultURL)
	if resolved, ok := resolve(origin, target); ok {
		target = resolved
	}

	for _, w := range windows {
		if sameOrigin(origin, w.URL) {
			return ClickResult{Kind: ClickFocus, WindowID: w.ID, URL: target}
		}
	}
	return ClickResult{Kind: ClickOpenNew, URL: target}
}

func resolve(origin, target string) (string, bool) {
	base, err := url.Parse(origin)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", false
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

func sameOrigin(origin, candidate string) bool {
	a, err := url.Parse(origin)
	if err != nil || a.Host == "" {
		return false
	}
	b, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
