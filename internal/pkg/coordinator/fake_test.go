package coordinator

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jake-scott/dahua-bridge/internal/pkg/dahuaapi"
)

var errNotSupported = errors.New("not supported")

// fakeDevice answers DeviceReader calls from canned responses.  Every call
// is recorded by method name.
type fakeDevice struct {
	mu        sync.Mutex
	responses map[string]map[string]string
	errs      map[string]error
	calls     []string

	maxExtra  int
	floodMode int
	// probeDelay slows the first initialisation call down
	probeDelay time.Duration
	stream    func(ctx context.Context, codes []string, channel int, cb dahuaapi.EventCallback) error
}

// newFakeDevice returns an IP camera that supports nothing optional
func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		maxExtra: 2,
		responses: map[string]map[string]string{
			"GetMachineName":           {"table.General.MachineName": "TestCam"},
			"GetSystemInfo":            {"serialNumber": "SERIAL123", "deviceType": "IPC-HDW5831R-ZE"},
			"GetSoftwareVersion":       {"version": "2.800.0000016.0.R,build:2020-06-05"},
			"GetDeviceType":            {"type": "IPC-HDW5831R-ZE"},
			"GetConfigMotionDetection": {"table.MotionDetect[0].Enable": "true"},
		},
		errs: map[string]error{
			"GetSnapshot":               errNotSupported,
			"GetCoaxialControlIOStatus": &dahuaapi.StatusError{URL: "http://test", Code: http.StatusInternalServerError},
			"GetDisarmingLinkage":       errNotSupported,
			"GetEventNotifications":     errNotSupported,
			"GetPTZPosition":            errNotSupported,
			"GetSmartMotionDetection":   errNotSupported,
			"GetConfigLighting":         errNotSupported,
			"GetLightingV2":             errNotSupported,
			"GetVideoInMode":            errNotSupported,
		},
	}
}

// support clears the error for each method so it answers with resp
func (f *fakeDevice) support(method string, resp map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.errs, method)
	f.responses[method] = resp
}

func (f *fakeDevice) fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = err
}

func (f *fakeDevice) called(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *fakeDevice) get(method string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, method)
	if err := f.errs[method]; err != nil {
		return nil, err
	}

	out := make(map[string]string)
	for k, v := range f.responses[method] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeDevice) GetMaxExtraStreams(ctx context.Context) (int, error) {
	time.Sleep(f.probeDelay)
	if _, err := f.get("GetMaxExtraStreams"); err != nil {
		return 0, err
	}
	return f.maxExtra, nil
}

func (f *fakeDevice) GetMachineName(ctx context.Context) (map[string]string, error) {
	return f.get("GetMachineName")
}

func (f *fakeDevice) GetSystemInfo(ctx context.Context) (map[string]string, error) {
	return f.get("GetSystemInfo")
}

func (f *fakeDevice) GetDeviceType(ctx context.Context) (map[string]string, error) {
	return f.get("GetDeviceType")
}

func (f *fakeDevice) GetSoftwareVersion(ctx context.Context) (map[string]string, error) {
	return f.get("GetSoftwareVersion")
}

func (f *fakeDevice) GetVendor(ctx context.Context) (map[string]string, error) {
	return f.get("GetVendor")
}

func (f *fakeDevice) GetCoaxialControlIOStatus(ctx context.Context) (map[string]string, error) {
	return f.get("GetCoaxialControlIOStatus")
}

func (f *fakeDevice) GetDisarmingLinkage(ctx context.Context) (map[string]string, error) {
	return f.get("GetDisarmingLinkage")
}

func (f *fakeDevice) GetEventNotifications(ctx context.Context) (map[string]string, error) {
	return f.get("GetEventNotifications")
}

func (f *fakeDevice) GetSmartMotionDetection(ctx context.Context) (map[string]string, error) {
	return f.get("GetSmartMotionDetection")
}

func (f *fakeDevice) GetPTZPosition(ctx context.Context) (map[string]string, error) {
	return f.get("GetPTZPosition")
}

func (f *fakeDevice) GetConfigLighting(ctx context.Context, channel int, profileMode string) (map[string]string, error) {
	return f.get("GetConfigLighting")
}

func (f *fakeDevice) GetLightingV2(ctx context.Context) (map[string]string, error) {
	return f.get("GetLightingV2")
}

func (f *fakeDevice) GetVideoInMode(ctx context.Context) (map[string]string, error) {
	return f.get("GetVideoInMode")
}

func (f *fakeDevice) GetConfigMotionDetection(ctx context.Context) (map[string]string, error) {
	return f.get("GetConfigMotionDetection")
}

func (f *fakeDevice) GetVideoAnalyseRulesForAmcrest(ctx context.Context) (map[string]string, error) {
	return f.get("GetVideoAnalyseRulesForAmcrest")
}

func (f *fakeDevice) GetLightGlobalEnabled(ctx context.Context) (map[string]string, error) {
	return f.get("GetLightGlobalEnabled")
}

func (f *fakeDevice) GetFloodLightMode(ctx context.Context) (int, error) {
	if _, err := f.get("GetFloodLightMode"); err != nil {
		return 0, err
	}
	return f.floodMode, nil
}

func (f *fakeDevice) GetSnapshot(ctx context.Context, channel int) ([]byte, error) {
	if _, err := f.get("GetSnapshot"); err != nil {
		return nil, err
	}
	return []byte{0xff}, nil
}

func (f *fakeDevice) StreamEvents(ctx context.Context, codes []string, channel int, cb dahuaapi.EventCallback) error {
	f.mu.Lock()
	f.calls = append(f.calls, "StreamEvents")
	stream := f.stream
	f.mu.Unlock()

	if stream != nil {
		return stream(ctx, codes, channel, cb)
	}

	<-ctx.Done()
	return ctx.Err()
}

type fakeHost struct {
	mu      sync.Mutex
	reauths int
}

func (h *fakeHost) StartReauth() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reauths++
}

func (h *fakeHost) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reauths
}

type fakeSink struct {
	mu   sync.Mutex
	seen []Notification
}

func (s *fakeSink) PublishEvent(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, n)
}

func (s *fakeSink) notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.seen...)
}
