package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/latticehabits/lattice/backend/internal/analytics"
	"github.com/latticehabits/lattice/backend/internal/calendar"
	"github.com/latticehabits/lattice/backend/internal/devices"
	"github.com/latticehabits/lattice/backend/internal/habits"
	"github.com/latticehabits/lattice/backend/internal/store"
	"go.uber.org/zap"
)

const (
	deviceHeaderName   = "X-Device-ID"
	deviceIDContextKey = "lattice_device_id"
)

var (
	errMissingHabitsService    = errors.New("habit service dependency required")
	errMissingDeviceService    = errors.New("device service dependency required")
	errMissingAnalyticsService = errors.New("analytics service dependency required")
	errMissingReorderDispatch  = errors.New("reorder dispatcher dependency required")
)

// Dependencies wires the HTTP surface to the engine.
type Dependencies struct {
	Habits    *habits.Service
	Devices   *devices.Service
	Analytics *analytics.Service
	Reorder   *store.ReorderDispatcher
	Logger    *zap.Logger
}

// NewHTTPHandler builds the REST router. Every route is scoped to the
// opaque device id carried in the X-Device-ID header; there is no
// authentication layer, a device's data is logically private to it.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Habits == nil {
		return nil, errMissingHabitsService
	}
	if deps.Devices == nil {
		return nil, errMissingDeviceService
	}
	if deps.Analytics == nil {
		return nil, errMissingAnalyticsService
	}
	if deps.Reorder == nil {
		return nil, errMissingReorderDispatch
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", deviceHeaderName},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		habits:    deps.Habits,
		devices:   deps.Devices,
		analytics: deps.Analytics,
		reorder:   deps.Reorder,
		logger:    logger,
	}

	scoped := router.Group("/")
	scoped.Use(handler.requireDevice)
	scoped.POST("/devices/bootstrap", handler.handleBootstrap)
	scoped.GET("/slots", handler.handleListSlots)
	scoped.POST("/slots", handler.handleCreateSlot)
	scoped.DELETE("/slots/:id", handler.handleDeleteSlot)
	scoped.POST("/slots/reorder", handler.handleReorderSlots)
	scoped.POST("/slots/:id/segments", handler.handleCreateSegment)
	scoped.PATCH("/segments/:id", handler.handleRenameSegment)
	scoped.DELETE("/segments/:id", handler.handleDeleteSegment)
	scoped.PUT("/segments/:id/entries/:date", handler.handleToggleEntry)
	scoped.GET("/analytics/:month", handler.handleAnalytics)

	return router, nil
}

type httpHandler struct {
	habits    *habits.Service
	devices   *devices.Service
	analytics *analytics.Service
	reorder   *store.ReorderDispatcher
	logger    *zap.Logger
}

func (h *httpHandler) requireDevice(c *gin.Context) {
	deviceID, err := habits.NewDeviceID(c.GetHeader(deviceHeaderName))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_device_id"})
		return
	}
	c.Set(deviceIDContextKey, deviceID.String())
	c.Next()
}

func (h *httpHandler) deviceID(c *gin.Context) habits.DeviceID {
	return habits.DeviceID(c.GetString(deviceIDContextKey))
}

// Wire encodings keep the storage contract's field names
// (deviceId, slotId, startDate, ...).
type slotPayload struct {
	ID       string `json:"id"`
	DeviceID string `json:"deviceId"`
	Time     string `json:"time"`
	Order    int    `json:"order"`
}

type segmentPayload struct {
	ID                string  `json:"id"`
	DeviceID          string  `json:"deviceId"`
	SlotID            string  `json:"slotId"`
	Name              string  `json:"name"`
	Color             string  `json:"color"`
	StartDate         string  `json:"startDate"`
	EndDate           *string `json:"endDate"`
	Streak            int     `json:"streak"`
	LastCompletedDate *string `json:"lastCompletedDate"`
}

type entryPayload struct {
	ID        string `json:"id"`
	DeviceID  string `json:"deviceId"`
	SegmentID string `json:"segmentId"`
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
}

func encodeSlot(slot habits.Slot) slotPayload {
	return slotPayload{ID: slot.SlotID, DeviceID: slot.DeviceID, Time: slot.Time, Order: slot.Order}
}

func encodeSegment(segment habits.HabitSegment) segmentPayload {
	return segmentPayload{
		ID:                segment.SegmentID,
		DeviceID:          segment.DeviceID,
		SlotID:            segment.SlotID,
		Name:              segment.Name,
		Color:             segment.Color,
		StartDate:         segment.StartDate,
		EndDate:           segment.EndDate,
		Streak:            segment.Streak,
		LastCompletedDate: segment.LastCompletedDate,
	}
}

func encodeEntry(entry habits.HabitEntry) entryPayload {
	return entryPayload{
		ID:        entry.EntryID,
		DeviceID:  entry.DeviceID,
		SegmentID: entry.SegmentID,
		Date:      entry.Date,
		Completed: entry.Completed,
	}
}

type bootstrapRequestPayload struct {
	Username string `json:"username"`
}

func (h *httpHandler) handleBootstrap(c *gin.Context) {
	var request bootstrapRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	device, err := h.devices.Bootstrap(c.Request.Context(), h.deviceID(c), request.Username)
	if err != nil {
		h.logger.Error("device bootstrap failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "bootstrap_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deviceId":  device.DeviceID,
		"username":  device.Username,
		"createdAt": device.CreatedAtSeconds,
	})
}

type segmentStatusPayload struct {
	segmentPayload
	EffectiveStreak int `json:"effectiveStreak"`
	NextMilestone   int `json:"nextMilestone"`
}

type slotOverviewPayload struct {
	slotPayload
	Segments []segmentStatusPayload `json:"segments"`
}

func (h *httpHandler) handleListSlots(c *gin.Context) {
	overview, err := h.habits.Overview(c.Request.Context(), h.deviceID(c))
	if err != nil {
		h.respondError(c, "overview_failed", err)
		return
	}

	response := make([]slotOverviewPayload, 0, len(overview))
	for _, row := range overview {
		segments := make([]segmentStatusPayload, 0, len(row.Segments))
		for _, status := range row.Segments {
			segments = append(segments, segmentStatusPayload{
				segmentPayload:  encodeSegment(status.Segment),
				EffectiveStreak: status.EffectiveStreak,
				NextMilestone:   status.NextMilestone,
			})
		}
		response = append(response, slotOverviewPayload{
			slotPayload: encodeSlot(row.Slot),
			Segments:    segments,
		})
	}
	c.JSON(http.StatusOK, gin.H{"slots": response})
}

type createSlotRequestPayload struct {
	Time string `json:"time"`
}

func (h *httpHandler) handleCreateSlot(c *gin.Context) {
	var request createSlotRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	slot, err := h.habits.CreateSlot(c.Request.Context(), h.deviceID(c), request.Time)
	if err != nil {
		h.respondError(c, "create_slot_failed", err)
		return
	}
	c.JSON(http.StatusCreated, encodeSlot(slot))
}

func (h *httpHandler) handleDeleteSlot(c *gin.Context) {
	slotID, err := habits.NewSlotID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_slot_id"})
		return
	}

	if err := h.habits.DeleteSlot(c.Request.Context(), h.deviceID(c), slotID); err != nil {
		h.respondError(c, "delete_slot_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reorderRequestPayload struct {
	SlotIDs []string `json:"slotIds"`
}

// handleReorderSlots acknowledges before the write lands. The dispatcher
// keeps failures observable through its subscription channel.
func (h *httpHandler) handleReorderSlots(c *gin.Context) {
	var request reorderRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.SlotIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	orderedIDs := make([]habits.SlotID, 0, len(request.SlotIDs))
	for _, raw := range request.SlotIDs {
		slotID, err := habits.NewSlotID(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_slot_id"})
			return
		}
		orderedIDs = append(orderedIDs, slotID)
	}

	h.reorder.Enqueue(h.deviceID(c), orderedIDs)
	c.Status(http.StatusAccepted)
}

type createSegmentRequestPayload struct {
	Name      string `json:"name"`
	Color     string `json:"color"`
	StartDate string `json:"startDate"`
}

func (h *httpHandler) handleCreateSegment(c *gin.Context) {
	slotID, err := habits.NewSlotID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_slot_id"})
		return
	}

	var request createSegmentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	startDate, err := calendar.ParseDay(request.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_start_date"})
		return
	}

	segment, err := h.habits.CreateSegment(c.Request.Context(), h.deviceID(c), slotID, request.Name, request.Color, startDate)
	if err != nil {
		h.respondError(c, "create_segment_failed", err)
		return
	}
	c.JSON(http.StatusCreated, encodeSegment(segment))
}

type renameSegmentRequestPayload struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (h *httpHandler) handleRenameSegment(c *gin.Context) {
	segmentID, err := habits.NewSegmentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_segment_id"})
		return
	}

	var request renameSegmentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	segment, err := h.habits.RenameSegment(c.Request.Context(), h.deviceID(c), segmentID, request.Name, request.Color)
	if err != nil {
		h.respondError(c, "rename_segment_failed", err)
		return
	}
	c.JSON(http.StatusOK, encodeSegment(segment))
}

func (h *httpHandler) handleDeleteSegment(c *gin.Context) {
	segmentID, err := habits.NewSegmentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_segment_id"})
		return
	}

	if err := h.habits.DeleteSegment(c.Request.Context(), h.deviceID(c), segmentID); err != nil {
		h.respondError(c, "delete_segment_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type toggleRequestPayload struct {
	Completed *bool `json:"completed"`
}

type toggleResponsePayload struct {
	Entry             entryPayload `json:"entry"`
	Streak            int          `json:"streak"`
	LastCompletedDate *string      `json:"lastCompletedDate"`
	NextMilestone     int          `json:"nextMilestone"`
}

func (h *httpHandler) handleToggleEntry(c *gin.Context) {
	segmentID, err := habits.NewSegmentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_segment_id"})
		return
	}
	date, err := calendar.ParseDay(c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}

	var request toggleRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Completed == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.habits.ToggleEntry(c.Request.Context(), h.deviceID(c), segmentID, date, *request.Completed)
	if err != nil {
		h.respondError(c, "toggle_entry_failed", err)
		return
	}

	response := toggleResponsePayload{
		Entry:             encodeEntry(result.Entry),
		Streak:            result.Streak,
		LastCompletedDate: result.Segment.LastCompletedDate,
		NextMilestone:     habits.NextMilestone(result.Streak),
	}
	c.JSON(http.StatusOK, response)
}

type dayStatPayload struct {
	Date    string  `json:"date"`
	Percent float64 `json:"percent"`
}

type weekStatPayload struct {
	Week    int     `json:"week"`
	Percent float64 `json:"percent"`
}

type habitRankPayload struct {
	SegmentID string  `json:"segmentId"`
	Name      string  `json:"name"`
	Color     string  `json:"color"`
	Percent   float64 `json:"percent"`
}

type analyticsResponsePayload struct {
	Month             string             `json:"month"`
	DailyCompletion   []dayStatPayload   `json:"dailyCompletion"`
	OverallEfficiency float64            `json:"overallEfficiency"`
	WeeklyProgress    []weekStatPayload  `json:"weeklyProgress"`
	TopHabits         []habitRankPayload `json:"topHabits"`
}

func (h *httpHandler) handleAnalytics(c *gin.Context) {
	month, err := calendar.ParseMonth(c.Param("month"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_month"})
		return
	}

	snapshot, err := h.analytics.Month(c.Request.Context(), h.deviceID(c), month)
	if err != nil {
		h.respondError(c, "analytics_failed", err)
		return
	}

	response := analyticsResponsePayload{
		Month:             snapshot.Month.String(),
		DailyCompletion:   make([]dayStatPayload, 0, len(snapshot.DailyCompletion)),
		OverallEfficiency: snapshot.OverallEfficiency,
		WeeklyProgress:    make([]weekStatPayload, 0, len(snapshot.WeeklyProgress)),
		TopHabits:         make([]habitRankPayload, 0, len(snapshot.TopHabits)),
	}
	for _, day := range snapshot.DailyCompletion {
		response.DailyCompletion = append(response.DailyCompletion, dayStatPayload{
			Date:    day.Date.String(),
			Percent: day.Percent,
		})
	}
	for _, week := range snapshot.WeeklyProgress {
		response.WeeklyProgress = append(response.WeeklyProgress, weekStatPayload{
			Week:    week.Week,
			Percent: week.Percent,
		})
	}
	for _, rank := range snapshot.TopHabits {
		response.TopHabits = append(response.TopHabits, habitRankPayload{
			SegmentID: rank.SegmentID,
			Name:      rank.Name,
			Color:     rank.Color,
			Percent:   rank.Percent,
		})
	}

	c.JSON(http.StatusOK, response)
}

// respondError maps engine failures onto transport status codes: missing
// records to 404, timeline conflicts to 422, adapter outages to 503.
func (h *httpHandler) respondError(c *gin.Context, fallbackCode string, err error) {
	switch {
	case errors.Is(err, habits.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
	case errors.Is(err, habits.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "detail": err.Error()})
	case errors.Is(err, habits.ErrInvalidRange):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid_range", "detail": err.Error()})
	case errors.Is(err, habits.ErrAdapterUnavailable):
		h.logger.Error("persistence adapter unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
	default:
		var serviceErr *habits.ServiceError
		if errors.As(err, &serviceErr) {
			h.logger.Error("request failed", zap.String("code", serviceErr.Code()), zap.Error(err))
		} else {
			h.logger.Error("request failed", zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallbackCode})
	}
}
