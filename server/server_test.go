package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/booster/agent"
	"github.com/hazyhaar/booster/channel"
	"github.com/hazyhaar/booster/controller"
	"github.com/hazyhaar/booster/dom"
	"github.com/hazyhaar/booster/dom/memdom"
	"github.com/hazyhaar/booster/eventloop"
	"github.com/hazyhaar/booster/host"
	"github.com/hazyhaar/booster/journal"
	"github.com/hazyhaar/booster/message"
)

const testPage = `<html><head></head><body><div id="a">x</div></body></html>`

type env struct {
	srv  *Server
	ts   *httptest.Server
	host *host.Host
	doc  *host.Document
	md   *memdom.Document
	jrnl *journal.Journal
}

func newEnv(t *testing.T, mutate func(*Options)) *env {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hubLoop := eventloop.New("controller", nil)
	go hubLoop.Run(ctx)
	hub := channel.NewPort(channel.ControllerSource, hubLoop, nil)

	j, err := journal.Open(":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })

	h := host.New(ctx, host.Options{Hub: hub, Agent: agent.Options{Recorder: j.Recorder()}})
	t.Cleanup(func() { h.Shutdown(context.Background()) })

	md := memdom.MustParse("https://example.test/", testPage)
	d, err := h.Attach(md)
	if err != nil {
		t.Fatal(err)
	}

	opts := Options{
		Host:       h,
		Controller: controller.New(hub, controller.Options{}),
		Journal:    j,
	}
	if mutate != nil {
		mutate(&opts)
	}
	s := New(opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &env{srv: s, ts: ts, host: h, doc: d, md: md, jrnl: j}
}

func (e *env) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func (e *env) barrier(t *testing.T) {
	t.Helper()
	if err := e.doc.Do(context.Background(), func(dom.Document) {}); err != nil {
		t.Fatal(err)
	}
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, nil)
	resp, body := e.do(t, "GET", "/healthz", nil)
	if resp.StatusCode != 200 || !strings.Contains(string(body), "ok") {
		t.Fatalf("healthz: %d %s", resp.StatusCode, body)
	}
}

func TestDocuments(t *testing.T) {
	e := newEnv(t, nil)

	resp, body := e.do(t, "GET", "/documents", nil)
	var list []host.Info
	if err := json.Unmarshal(body, &list); err != nil || resp.StatusCode != 200 {
		t.Fatalf("list: %d %s", resp.StatusCode, body)
	}
	if len(list) != 1 || list[0].ID != e.doc.ID() || !list[0].Active || list[0].URL != "https://example.test/" {
		t.Fatalf("list: %+v", list)
	}

	resp, body = e.do(t, "GET", "/documents/active", nil)
	if resp.StatusCode != 200 || !strings.Contains(string(body), e.doc.ID()) {
		t.Fatalf("active: %d %s", resp.StatusCode, body)
	}

	resp, _ = e.do(t, "GET", "/documents/nope", nil)
	if resp.StatusCode != 404 {
		t.Fatalf("unknown document: %d", resp.StatusCode)
	}

	resp, _ = e.do(t, "POST", "/documents", map[string]string{})
	if resp.StatusCode != 400 {
		t.Fatalf("open without url: %d", resp.StatusCode)
	}
	resp, _ = e.do(t, "POST", "/documents", map[string]string{"url": "https://a.test/"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("open without browser: %d", resp.StatusCode)
	}

	resp, _ = e.do(t, "POST", "/documents/"+e.doc.ID()+"/activate", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("activate: %d", resp.StatusCode)
	}

	resp, _ = e.do(t, "DELETE", "/documents/"+e.doc.ID(), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp, _ = e.do(t, "GET", "/documents/"+e.doc.ID(), nil)
	if resp.StatusCode != 404 {
		t.Fatalf("get after delete: %d", resp.StatusCode)
	}
}

func TestCommands(t *testing.T) {
	e := newEnv(t, nil)
	base := "/documents/" + e.doc.ID() + "/commands/"

	for _, cmd := range []string{CmdInvoke, CmdToggleAttribute} {
		resp, body := e.do(t, "POST", base+cmd, nil)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("%s: %d %s", cmd, resp.StatusCode, body)
		}
	}
	e.barrier(t)
	var marked bool
	e.doc.Do(context.Background(), func(dom.Document) { marked = e.md.Root().HasAttribute("boosterseat") })
	if !marked {
		t.Fatal("toggle-attribute did not reach the document")
	}

	resp, body := e.do(t, "POST", base+CmdAdjustScale, nil)
	var res Result
	json.Unmarshal(body, &res)
	if resp.StatusCode != http.StatusAccepted || res.Scale == nil || *res.Scale != 1.1 {
		t.Fatalf("adjust-scale: %d %s", resp.StatusCode, body)
	}

	resp, body = e.do(t, "POST", base+CmdMode, nil)
	json.Unmarshal(body, &res)
	if res.Mode != "class" {
		t.Fatalf("mode toggle: %s", body)
	}
	resp, body = e.do(t, "POST", base+CmdHide, Args{Mode: "id"})
	json.Unmarshal(body, &res)
	if resp.StatusCode != http.StatusAccepted || res.Mode != "id" {
		t.Fatalf("hide: %d %s", resp.StatusCode, body)
	}
	resp, body = e.do(t, "POST", base+CmdEscape, nil)
	json.Unmarshal(body, &res)
	if res.Deactivated == nil || !*res.Deactivated {
		t.Fatalf("escape: %s", body)
	}

	resp, _ = e.do(t, "POST", base+CmdBackground, nil)
	if resp.StatusCode != 400 {
		t.Fatalf("background without color: %d", resp.StatusCode)
	}
	resp, _ = e.do(t, "POST", base+"explode", nil)
	if resp.StatusCode != 404 {
		t.Fatalf("unknown command: %d", resp.StatusCode)
	}

	resp, body = e.do(t, "GET", "/controller", nil)
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"mode":"id"`) {
		t.Fatalf("controller: %d %s", resp.StatusCode, body)
	}
}

func TestJournal(t *testing.T) {
	e := newEnv(t, nil)
	base := "/documents/" + e.doc.ID()
	e.do(t, "POST", base+"/commands/"+CmdInvoke, nil)
	e.do(t, "POST", base+"/commands/"+CmdToggleAttribute, nil)
	e.barrier(t)
	if err := e.jrnl.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	resp, body := e.do(t, "GET", base+"/journal?limit=10", nil)
	var entries []journal.Entry
	if err := json.Unmarshal(body, &entries); err != nil || resp.StatusCode != 200 {
		t.Fatalf("journal: %d %s", resp.StatusCode, body)
	}
	if len(entries) < 3 || entries[0].Name != string(message.ToggleAttribute) || entries[0].Outcome != "applied" {
		t.Fatalf("entries: %+v", entries)
	}
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	e := newEnv(t, func(o *Options) {
		o.AuthUser = "admin"
		o.AuthHash = string(hash)
	})

	resp, _ := e.do(t, "GET", "/documents", nil)
	if resp.StatusCode != http.StatusUnauthorized || resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatalf("no credentials: %d", resp.StatusCode)
	}
	resp, _ = e.do(t, "GET", "/healthz", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("healthz behind auth: %d", resp.StatusCode)
	}

	for pass, want := range map[string]int{"wrong": 401, "s3cret": 200} {
		req, _ := http.NewRequest("GET", e.ts.URL+"/documents", nil)
		req.SetBasicAuth("admin", pass)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("password %q: got %d, want %d", pass, resp.StatusCode, want)
		}
	}
}

func TestChannel(t *testing.T) {
	for _, codec := range []channel.Codec{channel.JSON, channel.CBOR} {
		t.Run(codec.Subprotocol(), func(t *testing.T) {
			e := newEnv(t, nil)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			got := make(chan message.Message, 16)
			url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/documents/active/channel"
			remote, err := channel.Dial(ctx, url, channel.DelivererFunc(func(m message.Message) bool {
				select {
				case got <- m:
				default:
				}
				return true
			}), channel.DialOptions{Codec: codec})
			if err != nil {
				t.Fatal(err)
			}
			defer remote.Close()
			if remote.Codec().Subprotocol() != codec.Subprotocol() {
				t.Fatalf("negotiated %s", remote.Codec().Subprotocol())
			}

			tick := time.NewTicker(50 * time.Millisecond)
			defer tick.Stop()
			remote.Send(message.Install, nil)
			for {
				select {
				case m := <-got:
					if m.Source != e.doc.ID() {
						t.Fatalf("reply source %q, want %q", m.Source, e.doc.ID())
					}
					if m.Name == message.Ready || m.Name == message.ReplyScale {
						return
					}
				case <-tick.C:
					remote.Send(message.RequestScale, nil)
				case <-ctx.Done():
					t.Fatal("no reply over the channel")
				}
			}
		})
	}
}

func TestMCPTools(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	impl := &mcp.Implementation{Name: "boost-test", Version: "0.1.0"}
	serverT, clientT := mcp.NewInMemoryTransports()
	go func() { _ = e.srv.mcp.Run(ctx, serverT) }()
	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	// call returns the tool's text and whether the tool reported an error.
	// Tool errors travel in IsError; GetError is nil on clients.
	call := func(name string, args any) (string, bool) {
		res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
		if err != nil {
			t.Fatalf("CallTool(%s): %v", name, err)
		}
		var text string
		if len(res.Content) > 0 {
			if tc, ok := res.Content[0].(*mcp.TextContent); ok {
				text = tc.Text
			}
		}
		return text, res.IsError
	}

	text, isErr := call("boost_list_documents", map[string]any{})
	if isErr || !strings.Contains(text, e.doc.ID()) {
		t.Fatalf("list: %v %s", isErr, text)
	}
	if text, isErr := call("boost_command", map[string]any{"command": "invoke"}); isErr {
		t.Fatalf("invoke: %s", text)
	}
	text, isErr = call("boost_command", map[string]any{"command": "scale", "scale": 1.25})
	if isErr || !strings.Contains(text, "1.25") {
		t.Fatalf("scale: %v %s", isErr, text)
	}
	text, isErr = call("boost_command", map[string]any{"command": "font"})
	if !isErr || !strings.Contains(text, "font is required") {
		t.Fatalf("font without a family: isError=%v text=%q", isErr, text)
	}
	text, isErr = call("boost_command", map[string]any{"document": "nope", "command": "invoke"})
	if !isErr || !strings.Contains(text, "not found") {
		t.Fatalf("unknown document: isError=%v text=%q", isErr, text)
	}
	text, isErr = call("boost_controller_status", map[string]any{})
	if isErr || !strings.Contains(text, "last_known_scale") {
		t.Fatalf("status: %v %s", isErr, text)
	}

	e.barrier(t)
	e.jrnl.Flush(ctx)
	text, isErr = call("boost_journal", map[string]any{"limit": 5})
	if isErr || !strings.Contains(text, string(message.SetScale)) {
		t.Fatalf("journal: %v %s", isErr, text)
	}
}
