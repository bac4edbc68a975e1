package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"

	"hwmon-ng/internal/config"
	"hwmon-ng/internal/daemon"
	"hwmon-ng/internal/faults"
	"hwmon-ng/internal/hwmon"
	"hwmon-ng/internal/hwmonio/hwmoniotest"
	"hwmon-ng/internal/objmodel"
)

const root = "/sys/class/hwmon/hwmon2"

type testEnv struct {
	fs      *hwmoniotest.FaultFs
	bus     *objmodel.Server
	journal *faults.Journal
	mgr     *daemon.Manager
	logs    *LogBuffer
	ts      *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg, err := config.Parse([]byte("hwmon:\n  path: " + root + "\n  retry: {count: 1, delay: 1ns}\nsensors:\n  - {type: fan, id: '1'}\n  - {type: fan, id: '2'}\n"))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	env := &testEnv{
		fs:   hwmoniotest.NewFaultFs(nil),
		bus:  objmodel.NewServer(),
		logs: NewLogBuffer(10),
	}
	if err := env.fs.WriteAttr(filepath.Join(root, "pwm1"), "128"); err != nil {
		t.Fatalf("WriteAttr: %v", err)
	}
	if err := env.fs.WriteAttr(filepath.Join(root, "fan2_target"), "2000"); err != nil {
		t.Fatalf("WriteAttr: %v", err)
	}
	env.fs.Fail(filepath.Join(root, "fan2_target"), unix.EIO)

	reg := prometheus.NewRegistry()
	env.journal = faults.NewJournal(nil, reg, 16)
	env.mgr = daemon.New(daemon.Options{Config: cfg, FS: env.fs, Bus: env.bus, Reporter: env.journal, Registerer: reg})
	if err := env.mgr.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	env.ts = httptest.NewServer(Handler(Deps{
		Objects:  env.bus,
		Targets:  env.mgr,
		Faults:   env.journal,
		Logs:     env.logs,
		Gatherer: reg,
	}))
	t.Cleanup(env.ts.Close)
	return env
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s status code=%d", url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func postTarget(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/api/targets", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAPIObjects(t *testing.T) {
	env := newTestEnv(t)
	var objs []objmodel.ObjectSnapshot
	getJSON(t, env.ts.URL+"/api/objects", &objs)
	if len(objs) != 2 {
		t.Fatalf("objects=%d want 2", len(objs))
	}
	if objs[0].Path != "/hwmon/sensors/fan/fan1" {
		t.Fatalf("path=%q", objs[0].Path)
	}
	// JSON numbers decode as float64.
	if v := objs[0].Interfaces["hwmon.Control.FanPwm"]["Target"]; v != float64(128) {
		t.Fatalf("fan1 Target=%v want 128", v)
	}
	if v := objs[1].Interfaces["hwmon.Control.FanSpeed"]["Target"]; v != float64(0) {
		t.Fatalf("fan2 Target=%v want 0", v)
	}
}

func TestAPIFaults(t *testing.T) {
	env := newTestEnv(t)
	var resp faultsResponse
	getJSON(t, env.ts.URL+"/api/faults", &resp)
	if len(resp.Entries) != 1 {
		t.Fatalf("entries=%d want 1", len(resp.Entries))
	}
	if resp.Entries[0].Kind != faults.ReadFailure || resp.Entries[0].Errno != int(unix.EIO) {
		t.Fatalf("entry=%+v", resp.Entries[0])
	}
}

func TestAPIStatus(t *testing.T) {
	env := newTestEnv(t)
	var snap daemon.Snapshot
	getJSON(t, env.ts.URL+"/api/status", &snap)
	if !snap.Ready || len(snap.Sensors) != 2 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestAPITargets(t *testing.T) {
	env := newTestEnv(t)

	resp := postTarget(t, env.ts.URL, `{"path":"/hwmon/sensors/fan/fan1","interface":"FAN_PWM","value":200}`)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status=%d body=%s", resp.StatusCode, b)
	}
	if got, _ := env.fs.ReadAttr(filepath.Join(root, "pwm1")); got != "200" {
		t.Fatalf("pwm1=%q want 200", got)
	}

	cases := []struct {
		name string
		body string
		want int
	}{
		{"UnknownObject", `{"path":"/nope","interface":"FAN_PWM","value":1}`, http.StatusNotFound},
		{"MissingTarget", `{"path":"/hwmon/sensors/fan/fan1","interface":"FAN_SPEED","value":1}`, http.StatusNotFound},
		{"BadInterface", `{"path":"/hwmon/sensors/fan/fan1","interface":"FAN","value":1}`, http.StatusBadRequest},
		{"BadJSON", `{"path":`, http.StatusBadRequest},
		{"UnknownField", `{"path":"/hwmon/sensors/fan/fan1","interface":"FAN_PWM","value":1,"x":1}`, http.StatusBadRequest},
		{"WriteFailure", `{"path":"/hwmon/sensors/fan/fan2","interface":"hwmon.Control.FanSpeed","value":3000}`, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postTarget(t, env.ts.URL, tc.body)
			if resp.StatusCode != tc.want {
				t.Fatalf("status=%d want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestAPITargets_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.ts.URL + "/api/targets")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if resp.Header.Get("Allow") != http.MethodPost {
		t.Fatalf("Allow=%q", resp.Header.Get("Allow"))
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`hwmon_targets_provisioned_total{kind="FAN_PWM"} 1`,
		`hwmon_targets_provisioned_total{kind="FAN_SPEED"} 1`,
		`hwmon_device_failures_total{kind="Sensor.Device.ReadFailure"} 1`,
	} {
		if !bytes.Contains(b, []byte(want)) {
			t.Fatalf("metrics missing %q:\n%s", want, b)
		}
	}
}

func TestAPIAbout(t *testing.T) {
	env := newTestEnv(t)
	var about AboutResponse
	getJSON(t, env.ts.URL+"/api/about", &about)
	if about.Service != ServiceName {
		t.Fatalf("service=%q", about.Service)
	}
}

func TestEventsWebsocket(t *testing.T) {
	env := newTestEnv(t)
	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := env.mgr.SetTarget("/hwmon/sensors/fan/fan1", hwmon.FanPwmKind, 64); err != nil {
		t.Fatalf("SetTarget: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var sig objmodel.Signal
	if err := conn.ReadJSON(&sig); err != nil {
		t.Fatalf("read: %v", err)
	}
	if sig.Kind != objmodel.PropertiesChanged || sig.Path != "/hwmon/sensors/fan/fan1" {
		t.Fatalf("signal=%+v", sig)
	}
	if sig.Properties["Target"] != float64(64) {
		t.Fatalf("Target=%v want 64", sig.Properties["Target"])
	}
}

func TestLogBuffer(t *testing.T) {
	b := NewLogBuffer(2)
	_, _ = b.Write([]byte("one\ntw"))
	_, _ = b.Write([]byte("o\nthree\n"))
	lines, dropped := b.Snapshot(0)
	if len(lines) != 2 || lines[0] != "two" || lines[1] != "three" {
		t.Fatalf("lines=%q", lines)
	}
	if dropped != 1 {
		t.Fatalf("dropped=%d want 1", dropped)
	}
}

func TestAPILogs_Text(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.logs.Write([]byte("hello\n"))
	resp, err := http.Get(env.ts.URL + "/api/logs?format=text")
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if string(b) != "hello\n" {
		t.Fatalf("body=%q", b)
	}

	bad, err := http.Get(env.ts.URL + "/api/logs?tail=0")
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", bad.StatusCode)
	}
}
