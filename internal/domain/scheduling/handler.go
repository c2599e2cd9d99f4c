package scheduling

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/booking/pkg/pagination"
)

type Handler struct {
	svc    *Service
	agg    *Aggregator
	booker *Committer
}

func NewHandler(svc *Service, agg *Aggregator, booker *Committer) *Handler {
	return &Handler{svc: svc, agg: agg, booker: booker}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/availability", h.GetAvailability)

	api.POST("/appointments", h.BookAppointment)
	api.GET("/appointments", h.ListAppointments)
	api.GET("/appointments/:id", h.GetAppointment)
	api.PATCH("/appointments/:id", h.UpdateAppointment)
	api.POST("/appointments/:id/cancel", h.CancelAppointment)
	api.POST("/appointments/:id/no-show", h.MarkNoShow)
	api.DELETE("/appointments/:id", h.DeleteAppointment)

	api.GET("/doctors", h.ListDoctors)
	api.POST("/doctors", h.CreateDoctor)
	api.GET("/doctors/:id", h.GetDoctor)
	api.PUT("/doctors/:id", h.UpdateDoctor)
	api.DELETE("/doctors/:id", h.DeleteDoctor)

	api.GET("/appointment-types", h.ListAppointmentTypes)
	api.POST("/appointment-types", h.CreateAppointmentType)
	api.GET("/appointment-types/:id", h.GetAppointmentType)
	api.PUT("/appointment-types/:id", h.UpdateAppointmentType)
	api.DELETE("/appointment-types/:id", h.DeleteAppointmentType)

	api.GET("/availabilities", h.ListWeeklyAvailability)
	api.POST("/availabilities", h.CreateWeeklyAvailability)
	api.GET("/availabilities/:id", h.GetWeeklyAvailability)
	api.PUT("/availabilities/:id", h.UpdateWeeklyAvailability)
	api.DELETE("/availabilities/:id", h.DeleteWeeklyAvailability)

	api.GET("/daily-availabilities", h.ListDailyAvailability)
	api.POST("/daily-availabilities", h.CreateDailyAvailability)
	api.GET("/daily-availabilities/:id", h.GetDailyAvailability)
	api.PUT("/daily-availabilities/:id", h.UpdateDailyAvailability)
	api.DELETE("/daily-availabilities/:id", h.DeleteDailyAvailability)

	api.GET("/availability-exceptions", h.ListExceptions)
	api.POST("/availability-exceptions", h.CreateException)
	api.GET("/availability-exceptions/:id", h.GetException)
	api.PUT("/availability-exceptions/:id", h.UpdateException)
	api.DELETE("/availability-exceptions/:id", h.DeleteException)
}

// httpError maps domain errors onto status codes. Unclassified errors become
// a 500 whose detail is kept for the error handler's log only.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidWindow):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrInUse):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func queryUUID(c echo.Context, name string) (*uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(req)
}

// -- Availability --

// GetAvailability serves four query shapes:
//
//	?doctorId&date&appointmentTypeId[&includeBooked=true]  -> {"slots": [...]}
//	?doctorId&weekStart&weekEnd[&appointmentTypeId]       -> {"availability": [...]}
//	?doctorId&start&end[&appointmentTypeId]               -> {"availability": [...]}
//	?doctorId&month=YYYY-MM[&appointmentTypeId]           -> {"availability": [...]}
func (h *Handler) GetAvailability(c echo.Context) error {
	doctorID, err := queryUUID(c, "doctorId")
	if err != nil {
		return err
	}
	if doctorID == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "doctorId is required")
	}
	typeID, err := queryUUID(c, "appointmentTypeId")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if raw := c.QueryParam("date"); raw != "" {
		date, err := ParseLocalDate(raw)
		if err != nil {
			return httpError(err)
		}
		if typeID == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "appointmentTypeId is required")
		}
		mode := FilterDrop
		if raw := c.QueryParam("includeBooked"); raw != "" {
			include, err := strconv.ParseBool(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid includeBooked")
			}
			if include {
				mode = FilterFlag
			}
		}
		slots, err := h.agg.SlotsForDate(ctx, SlotQuery{
			DoctorID:          *doctorID,
			Date:              date,
			AppointmentTypeID: *typeID,
			Mode:              mode,
		})
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"slots": slots})
	}

	q := RangeQuery{DoctorID: *doctorID, AppointmentTypeID: typeID}
	switch {
	case c.QueryParam("month") != "":
		q.From, q.To, err = ParseMonth(c.QueryParam("month"))
	case c.QueryParam("weekStart") != "" || c.QueryParam("weekEnd") != "":
		q.From, q.To, err = parseRange(c.QueryParam("weekStart"), c.QueryParam("weekEnd"))
	case c.QueryParam("start") != "" || c.QueryParam("end") != "":
		q.From, q.To, err = parseRange(c.QueryParam("start"), c.QueryParam("end"))
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "one of date, month, weekStart/weekEnd or start/end is required")
	}
	if err != nil {
		return httpError(err)
	}

	summaries, err := h.agg.Summaries(ctx, q)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"availability": summaries})
}

func parseRange(start, end string) (LocalDate, LocalDate, error) {
	if start == "" || end == "" {
		return LocalDate{}, LocalDate{}, validationf("both ends of the range are required")
	}
	from, err := ParseLocalDate(start)
	if err != nil {
		return LocalDate{}, LocalDate{}, err
	}
	to, err := ParseLocalDate(end)
	if err != nil {
		return LocalDate{}, LocalDate{}, err
	}
	return from, to, nil
}

// -- Appointments --

type patientRequest struct {
	FullName string  `json:"fullName" validate:"required,min=2,max=120"`
	Phone    string  `json:"phone" validate:"required,min=5,max=40"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
}

type bookingRequest struct {
	DoctorID          uuid.UUID       `json:"doctorId" validate:"required"`
	AppointmentTypeID uuid.UUID       `json:"appointmentTypeId" validate:"required"`
	StartUTC          time.Time       `json:"startUtc" validate:"required"`
	PatientID         *uuid.UUID      `json:"patientId,omitempty"`
	Patient           *patientRequest `json:"patient,omitempty"`
	Notes             *string         `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type bookingResponse struct {
	OK          bool         `json:"ok"`
	Appointment *Appointment `json:"appointment,omitempty"`
	Error       string       `json:"error,omitempty"`
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var req bookingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	br := BookingRequest{
		DoctorID:          req.DoctorID,
		AppointmentTypeID: req.AppointmentTypeID,
		StartUTC:          req.StartUTC,
		PatientID:         req.PatientID,
		Notes:             req.Notes,
	}
	if req.Patient != nil {
		br.Patient = &PatientInput{FullName: req.Patient.FullName, Phone: req.Patient.Phone, Email: req.Patient.Email}
	}

	result, err := h.booker.Book(c.Request().Context(), br)
	if err != nil {
		return httpError(err)
	}
	if result.Outcome == OutcomeSlotTaken {
		return c.JSON(http.StatusConflict, bookingResponse{OK: false, Error: SlotTakenMessage})
	}
	return c.JSON(http.StatusCreated, bookingResponse{OK: true, Appointment: result.Appointment})
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	var f AppointmentFilter
	var err error
	if f.DoctorID, err = queryUUID(c, "doctorId"); err != nil {
		return err
	}
	if f.PatientID, err = queryUUID(c, "patientId"); err != nil {
		return err
	}
	if raw := c.QueryParam("status"); raw != "" {
		st := AppointmentStatus(raw)
		f.Status = &st
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if raw := c.QueryParam(name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": expected RFC 3339")
			}
			*dst = &t
		}
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type appointmentPatchRequest struct {
	DoctorID          *uuid.UUID `json:"doctorId,omitempty"`
	AppointmentTypeID *uuid.UUID `json:"appointmentTypeId,omitempty"`
	StartUTC          *time.Time `json:"startUtc,omitempty"`
	Status            *string    `json:"status,omitempty" validate:"omitempty,oneof=CONFIRMED CANCELLED NO_SHOW"`
	Notes             *string    `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req appointmentPatchRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	patch := AppointmentPatch{
		DoctorID:          req.DoctorID,
		AppointmentTypeID: req.AppointmentTypeID,
		StartUTC:          req.StartUTC,
		Notes:             req.Notes,
	}
	if req.Status != nil {
		st := AppointmentStatus(*req.Status)
		patch.Status = &st
	}

	result, err := h.svc.UpdateAppointment(c.Request().Context(), id, patch)
	if err != nil {
		return httpError(err)
	}
	if result.Outcome == OutcomeSlotTaken {
		return c.JSON(http.StatusConflict, bookingResponse{OK: false, Error: SlotTakenMessage})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"appointment": result.Appointment})
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.CancelAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"appointment": a})
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.MarkNoShow(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"appointment": a})
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

// -- Doctors --

type doctorRequest struct {
	DisplayName string  `json:"displayName" validate:"required,min=2,max=120"`
	Specialties *string `json:"specialties,omitempty"`
	Languages   *string `json:"languages,omitempty"`
}

func (r doctorRequest) toDoctor() *Doctor {
	return &Doctor{DisplayName: r.DisplayName, Specialties: r.Specialties, Languages: r.Languages}
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	var req doctorRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	d := req.toDoctor()
	if err := h.svc.CreateDoctor(c.Request().Context(), d); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req doctorRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	d := req.toDoctor()
	d.ID = id
	if err := h.svc.UpdateDoctor(c.Request().Context(), d); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Appointment types --

type appointmentTypeRequest struct {
	Name            string  `json:"name" validate:"required,max=120"`
	DurationMin     *int    `json:"durationMin,omitempty" validate:"omitempty,min=1"`
	BufferBeforeMin *int    `json:"bufferBeforeMin,omitempty" validate:"omitempty,min=0"`
	BufferAfterMin  *int    `json:"bufferAfterMin,omitempty" validate:"omitempty,min=0"`
	PriceMinorUnit  *int    `json:"priceMinorUnit,omitempty" validate:"omitempty,min=0"`
	Currency        *string `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// Defaults match the schema: 20 minute visits, 5 minutes of cleanup after.
func (r appointmentTypeRequest) toType() *AppointmentType {
	t := &AppointmentType{
		Name:            r.Name,
		DurationMin:     20,
		BufferBeforeMin: 0,
		BufferAfterMin:  5,
		PriceMinorUnit:  r.PriceMinorUnit,
		Currency:        r.Currency,
	}
	if r.DurationMin != nil {
		t.DurationMin = *r.DurationMin
	}
	if r.BufferBeforeMin != nil {
		t.BufferBeforeMin = *r.BufferBeforeMin
	}
	if r.BufferAfterMin != nil {
		t.BufferAfterMin = *r.BufferAfterMin
	}
	return t
}

func (h *Handler) CreateAppointmentType(c echo.Context) error {
	var req appointmentTypeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	t := req.toType()
	if err := h.svc.CreateAppointmentType(c.Request().Context(), t); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetAppointmentType(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GetAppointmentType(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) UpdateAppointmentType(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req appointmentTypeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	t := req.toType()
	t.ID = id
	if err := h.svc.UpdateAppointmentType(c.Request().Context(), t); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteAppointmentType(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointmentType(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListAppointmentTypes(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointmentTypes(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Weekly availability --

type weeklyRequest struct {
	DoctorID    uuid.UUID `json:"doctorId" validate:"required"`
	DayOfWeek   *int      `json:"dayOfWeek" validate:"required,min=0,max=6"`
	StartTime   string    `json:"startTime" validate:"required"`
	EndTime     string    `json:"endTime" validate:"required"`
	SlotSizeMin *int      `json:"slotSizeMin,omitempty" validate:"omitempty,min=5"`
}

func (r weeklyRequest) toWeekly() *WeeklyAvailability {
	w := &WeeklyAvailability{
		DoctorID:    r.DoctorID,
		DayOfWeek:   *r.DayOfWeek,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		SlotSizeMin: DefaultSlotSizeMin,
	}
	if r.SlotSizeMin != nil {
		w.SlotSizeMin = *r.SlotSizeMin
	}
	return w
}

func (h *Handler) CreateWeeklyAvailability(c echo.Context) error {
	var req weeklyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	w := req.toWeekly()
	if err := h.svc.CreateWeeklyAvailability(c.Request().Context(), w); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, w)
}

func (h *Handler) GetWeeklyAvailability(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	w, err := h.svc.GetWeeklyAvailability(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) UpdateWeeklyAvailability(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req weeklyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	w := req.toWeekly()
	w.ID = id
	if err := h.svc.UpdateWeeklyAvailability(c.Request().Context(), w); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) DeleteWeeklyAvailability(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteWeeklyAvailability(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListWeeklyAvailability(c echo.Context) error {
	doctorID, err := queryUUID(c, "doctorId")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListWeeklyAvailability(c.Request().Context(), doctorID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Daily availability --

type dailyRequest struct {
	DoctorID    uuid.UUID `json:"doctorId" validate:"required"`
	Date        string    `json:"date" validate:"required"`
	StartTime   string    `json:"startTime" validate:"required"`
	EndTime     string    `json:"endTime" validate:"required"`
	SlotSizeMin *int      `json:"slotSizeMin,omitempty" validate:"omitempty,min=5"`
}

func (r dailyRequest) toDaily() (*DailyAvailability, error) {
	date, err := ParseLocalDate(r.Date)
	if err != nil {
		return nil, err
	}
	d := &DailyAvailability{
		DoctorID:    r.DoctorID,
		Date:        date,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		SlotSizeMin: DefaultSlotSizeMin,
	}
	if r.SlotSizeMin != nil {
		d.SlotSizeMin = *r.SlotSizeMin
	}
	return d, nil
}

func (h *Handler) CreateDailyAvailability(c echo.Context) error {
	var req dailyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	d, err := req.toDaily()
	if err != nil {
		return httpError(err)
	}
	if err := h.svc.CreateDailyAvailability(c.Request().Context(), d); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDailyAvailability(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDailyAvailability(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDailyAvailability(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req dailyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	d, err := req.toDaily()
	if err != nil {
		return httpError(err)
	}
	d.ID = id
	if err := h.svc.UpdateDailyAvailability(c.Request().Context(), d); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDailyAvailability(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDailyAvailability(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDailyAvailability(c echo.Context) error {
	doctorID, err := queryUUID(c, "doctorId")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDailyAvailability(c.Request().Context(), doctorID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Exceptions --

type exceptionRequest struct {
	DoctorID uuid.UUID `json:"doctorId" validate:"required"`
	Date     string    `json:"date" validate:"required"`
	IsClosed bool      `json:"isClosed"`
	Windows  *string   `json:"windows,omitempty" validate:"omitempty,max=255"`
	Note     *string   `json:"note,omitempty" validate:"omitempty,max=255"`
}

func (r exceptionRequest) toException() (*AvailabilityException, error) {
	date, err := ParseLocalDate(r.Date)
	if err != nil {
		return nil, err
	}
	return &AvailabilityException{
		DoctorID: r.DoctorID,
		Date:     date,
		IsClosed: r.IsClosed,
		Windows:  r.Windows,
		Note:     r.Note,
	}, nil
}

func (h *Handler) CreateException(c echo.Context) error {
	var req exceptionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	e, err := req.toException()
	if err != nil {
		return httpError(err)
	}
	if err := h.svc.CreateException(c.Request().Context(), e); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetException(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	e, err := h.svc.GetException(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) UpdateException(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req exceptionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	e, err := req.toException()
	if err != nil {
		return httpError(err)
	}
	e.ID = id
	if err := h.svc.UpdateException(c.Request().Context(), e); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) DeleteException(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteException(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListExceptions(c echo.Context) error {
	doctorID, err := queryUUID(c, "doctorId")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListExceptions(c.Request().Context(), doctorID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
