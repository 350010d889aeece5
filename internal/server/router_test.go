package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/latticehabits/lattice/backend/internal/analytics"
	"github.com/latticehabits/lattice/backend/internal/calendar"
	"github.com/latticehabits/lattice/backend/internal/devices"
	"github.com/latticehabits/lattice/backend/internal/habits"
	"github.com/latticehabits/lattice/backend/internal/store"
	"gorm.io/gorm"
)

const (
	testDeviceHeader = "device-router-test"
	jsonContentType  = "application/json"
)

var routerTestCounter int

type testStack struct {
	handler http.Handler
	reorder *store.ReorderDispatcher
}

func newTestStack(t *testing.T, today string) testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	routerTestCounter++
	dsn := fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared", routerTestCounter)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&habits.Device{}, &habits.Slot{}, &habits.HabitSegment{}, &habits.HabitEntry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	adapter, err := store.NewGormAdapter(db, nil)
	if err != nil {
		t.Fatalf("failed to build adapter: %v", err)
	}

	day, err := calendar.ParseDay(today)
	if err != nil {
		t.Fatalf("unexpected day parse error: %v", err)
	}

	habitService, err := habits.NewService(habits.ServiceConfig{
		Adapter:    adapter,
		Clock:      calendar.FixedClock{Day: day},
		IDProvider: habits.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build habit service: %v", err)
	}

	deviceService, err := devices.NewService(devices.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		t.Fatalf("failed to build device service: %v", err)
	}

	analyticsService, err := analytics.NewService(analytics.ServiceConfig{Adapter: adapter})
	if err != nil {
		t.Fatalf("failed to build analytics service: %v", err)
	}

	reorderDispatcher := store.NewReorderDispatcher(adapter, nil)

	handler, err := NewHTTPHandler(Dependencies{
		Habits:    habitService,
		Devices:   deviceService,
		Analytics: analyticsService,
		Reorder:   reorderDispatcher,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return testStack{handler: handler, reorder: reorderDispatcher}
}

func performRequest(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", jsonContentType)
	request.Header.Set(deviceHeaderName, testDeviceHeader)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func TestRequireDeviceHeaderRejectsMissingID(t *testing.T) {
	stack := newTestStack(t, "2025-06-10")

	request := httptest.NewRequest(http.MethodGet, "/slots", nil)
	recorder := httptest.NewRecorder()
	stack.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without device header, got %d", recorder.Code)
	}
}

func TestSlotSegmentToggleFlow(t *testing.T) {
	stack := newTestStack(t, "2025-06-10")

	if code := performRequest(t, stack.handler, http.MethodPost, "/devices/bootstrap", gin.H{"username": "river"}).Code; code != http.StatusOK {
		t.Fatalf("expected bootstrap 200, got %d", code)
	}

	slotRecorder := performRequest(t, stack.handler, http.MethodPost, "/slots", gin.H{"time": "07:00"})
	if slotRecorder.Code != http.StatusCreated {
		t.Fatalf("expected slot 201, got %d: %s", slotRecorder.Code, slotRecorder.Body.String())
	}
	var slot struct {
		ID string `json:"id"`
	}
	decodeBody(t, slotRecorder, &slot)

	segmentRecorder := performRequest(t, stack.handler, http.MethodPost, "/slots/"+slot.ID+"/segments", gin.H{
		"name":      "Meditate",
		"color":     "#10b981",
		"startDate": "2025-01-01",
	})
	if segmentRecorder.Code != http.StatusCreated {
		t.Fatalf("expected segment 201, got %d: %s", segmentRecorder.Code, segmentRecorder.Body.String())
	}
	var segment struct {
		ID      string  `json:"id"`
		EndDate *string `json:"endDate"`
	}
	decodeBody(t, segmentRecorder, &segment)
	if segment.EndDate != nil {
		t.Fatalf("expected open segment, got end date %v", *segment.EndDate)
	}

	toggleRecorder := performRequest(t, stack.handler, http.MethodPut, "/segments/"+segment.ID+"/entries/2025-06-10", gin.H{"completed": true})
	if toggleRecorder.Code != http.StatusOK {
		t.Fatalf("expected toggle 200, got %d: %s", toggleRecorder.Code, toggleRecorder.Body.String())
	}
	var toggle struct {
		Streak            int     `json:"streak"`
		LastCompletedDate *string `json:"lastCompletedDate"`
		NextMilestone     int     `json:"nextMilestone"`
	}
	decodeBody(t, toggleRecorder, &toggle)
	if toggle.Streak != 1 || toggle.NextMilestone != 7 {
		t.Fatalf("unexpected toggle response: %+v", toggle)
	}
	if toggle.LastCompletedDate == nil || *toggle.LastCompletedDate != "2025-06-10" {
		t.Fatalf("unexpected last completed date: %v", toggle.LastCompletedDate)
	}

	listRecorder := performRequest(t, stack.handler, http.MethodGet, "/slots", nil)
	if listRecorder.Code != http.StatusOK {
		t.Fatalf("expected list 200, got %d", listRecorder.Code)
	}
	var list struct {
		Slots []struct {
			ID       string `json:"id"`
			Segments []struct {
				EffectiveStreak int `json:"effectiveStreak"`
			} `json:"segments"`
		} `json:"slots"`
	}
	decodeBody(t, listRecorder, &list)
	if len(list.Slots) != 1 || len(list.Slots[0].Segments) != 1 {
		t.Fatalf("unexpected overview shape: %s", listRecorder.Body.String())
	}
	if list.Slots[0].Segments[0].EffectiveStreak != 1 {
		t.Fatalf("expected live effective streak 1, got %d", list.Slots[0].Segments[0].EffectiveStreak)
	}
}

func TestToggleUnknownSegmentReturnsNotFound(t *testing.T) {
	stack := newTestStack(t, "2025-06-10")

	recorder := performRequest(t, stack.handler, http.MethodPut, "/segments/segment-missing/entries/2025-06-10", gin.H{"completed": true})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestCreateSegmentConflictReturnsUnprocessable(t *testing.T) {
	stack := newTestStack(t, "2025-06-10")

	slotRecorder := performRequest(t, stack.handler, http.MethodPost, "/slots", gin.H{"time": "07:00"})
	var slot struct {
		ID string `json:"id"`
	}
	decodeBody(t, slotRecorder, &slot)

	first := performRequest(t, stack.handler, http.MethodPost, "/slots/"+slot.ID+"/segments", gin.H{
		"name": "Meditate", "color": "#10b981", "startDate": "2025-03-01",
	})
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first segment 201, got %d", first.Code)
	}

	conflict := performRequest(t, stack.handler, http.MethodPost, "/slots/"+slot.ID+"/segments", gin.H{
		"name": "Run", "color": "#f97316", "startDate": "2025-02-01",
	})
	if conflict.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for range conflict, got %d: %s", conflict.Code, conflict.Body.String())
	}
}

func TestReorderAcknowledgesBeforeApplying(t *testing.T) {
	stack := newTestStack(t, "2025-06-10")

	var slotIDs []string
	for _, timeOfDay := range []string{"07:00", "12:00"} {
		recorder := performRequest(t, stack.handler, http.MethodPost, "/slots", gin.H{"time": timeOfDay})
		var slot struct {
			ID string `json:"id"`
		}
		decodeBody(t, recorder, &slot)
		slotIDs = append(slotIDs, slot.ID)
	}

	recorder := performRequest(t, stack.handler, http.MethodPost, "/slots/reorder", gin.H{
		"slotIds": []string{slotIDs[1], slotIDs[0]},
	})
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", recorder.Code)
	}
	stack.reorder.Wait()

	listRecorder := performRequest(t, stack.handler, http.MethodGet, "/slots", nil)
	var list struct {
		Slots []struct {
			ID string `json:"id"`
		} `json:"slots"`
	}
	decodeBody(t, listRecorder, &list)
	if list.Slots[0].ID != slotIDs[1] {
		t.Fatalf("expected reorder applied, got %+v", list.Slots)
	}
}

func TestAnalyticsEndpointRejectsBadMonth(t *testing.T) {
	stack := newTestStack(t, "2025-06-10")

	recorder := performRequest(t, stack.handler, http.MethodGet, "/analytics/june-2025", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed month, got %d", recorder.Code)
	}
}
