package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/busylight/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"ms": func(d time.Duration) int64 {
		return d.Milliseconds()
	},
	"phaseOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
	}
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Busylight</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Busylight</h1>

<h2>Indicator</h2>
<table>
<tr><th>Signal</th><td id="signal" class="{{if .Indicator.Visible}}on{{else}}off{{end}}">{{if .Indicator.Visible}}BUSY{{else}}IDLE{{end}}</td></tr>
<tr><th>Phase</th><td>{{phaseOrUnknown (printf "%s" .Indicator.Phase)}}</td></tr>
<tr><th>Activity</th><td id="count">{{.Indicator.Count}}</td></tr>
<tr><th>Enabled</th><td>{{if .Indicator.Enabled}}yes{{else}}no{{end}}</td></tr>
<tr><th>Activation delay</th><td>{{ms .Indicator.ActivationDelay}}ms</td></tr>
<tr><th>Completion delay</th><td>{{ms .Indicator.CompletionDelay}}ms</td></tr>
{{if not .LastChange.IsZero}}<tr><th>Last change</th><td>{{.LastChange.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
</table>
<p>
<button onclick="post('/activity/increment')">+1</button>
<button onclick="post('/activity/decrement')">-1</button>
</p>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}none{{end}}</td></tr>
</table>

<h2>Transitions</h2>
<table>
<tr><th>Shown</th><td>{{.Indicator.Counts.Shown}}</td></tr>
<tr><th>Hidden</th><td>{{.Indicator.Counts.Hidden}}</td></tr>
<tr><th>Suppressed</th><td>{{.Indicator.Counts.Suppressed}}</td></tr>
<tr><th>Bridged</th><td>{{.Indicator.Counts.Bridged}}</td></tr>
<tr><th>Over-decrements</th><td>{{.Indicator.Counts.OverDecrements}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Instance</th><td>{{.InstanceID}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
{{if .Config.LEDPin}}<tr><th>LED pin</th><td>{{.Config.LEDPin}}</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a> | <a href="/config">config</a> | <a href="/metrics">metrics</a></p>
<script>
function post(path) {
  fetch(path, { method: "POST" }).then(function() { location.reload(); });
}
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
