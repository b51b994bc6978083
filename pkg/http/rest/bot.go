package rest

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cloudgroundcontrol/meetbot/pkg/session"
	"github.com/cloudgroundcontrol/meetbot/pkg/speaker"
)

var ErrEmptyFields = errors.New("one or more fields is empty")

type botController struct {
	session.Service
}

func NewBotController(service session.Service) botController {
	return botController{service}
}

type StartBotRequest struct {
	MeetingURL    string   `json:"meeting_url"`
	BotID         string   `json:"bot_id"`
	BotName       string   `json:"bot_name"`
	Role          string   `json:"role"`
	RecordingMode string   `json:"recording_mode"`
	Provider      string   `json:"provider"`
	Vocabulary    []string `json:"vocabulary"`
}

type StartBotResponse struct {
	SessionID string `json:"session_id"`
}

type StopBotRequest struct {
	Reason string `json:"reason"`
}

type SpeakerUpdateRequest struct {
	Speakers []speaker.Data `json:"speakers"`
}

func (bc *botController) StartBot(c echo.Context) error {
	data := new(StartBotRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}

	if data.MeetingURL == "" || data.Provider == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}

	id, err := bc.Service.StartSession(c.Request().Context(), session.StartSessionRequest{
		MeetingURL:    data.MeetingURL,
		BotID:         data.BotID,
		BotName:       data.BotName,
		Role:          data.Role,
		RecordingMode: data.RecordingMode,
		Provider:      data.Provider,
		Vocabulary:    data.Vocabulary,
	})
	if errors.Is(err, session.ErrSessionInProgress) {
		return echo.NewHTTPError(http.StatusConflict, err)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, StartBotResponse{SessionID: id})
}

func (bc *botController) StopBot(c echo.Context) error {
	data := new(StopBotRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}

	err := bc.Service.StopSession(c.Request().Context(), data.Reason)
	if errors.Is(err, session.ErrNoActiveSession) {
		return echo.NewHTTPError(http.StatusNotFound, err)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	return c.NoContent(http.StatusOK)
}

func (bc *botController) PauseBot(c echo.Context) error {
	err := bc.Service.PauseSession(c.Request().Context())
	if errors.Is(err, session.ErrNoActiveSession) {
		return echo.NewHTTPError(http.StatusNotFound, err)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	return c.NoContent(http.StatusOK)
}

func (bc *botController) ResumeBot(c echo.Context) error {
	err := bc.Service.ResumeSession(c.Request().Context())
	if errors.Is(err, session.ErrNoActiveSession) {
		return echo.NewHTTPError(http.StatusNotFound, err)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	return c.NoContent(http.StatusOK)
}

func (bc *botController) BotState(c echo.Context) error {
	info, err := bc.Service.State(c.Request().Context())
	if errors.Is(err, session.ErrNoActiveSession) {
		return echo.NewHTTPError(http.StatusNotFound, err)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, info)
}

// PushChunk ingests one raw media chunk. The body is the chunk bytes; the
// final chunk of a session is flagged with ?final=true.
func (bc *botController) PushChunk(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if len(data) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, errors.New("empty chunk"))
	}

	isFinal := c.QueryParam("final") == "true"
	err = bc.Service.PushChunk(c.Request().Context(), data, isFinal)
	if errors.Is(err, session.ErrNoActiveSession) {
		return echo.NewHTTPError(http.StatusNotFound, err)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	return c.NoContent(http.StatusOK)
}

func (bc *botController) PushSpeakers(c echo.Context) error {
	data := new(SpeakerUpdateRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}

	err := bc.Service.PushSpeakers(c.Request().Context(), data.Speakers)
	if errors.Is(err, session.ErrNoActiveSession) {
		return echo.NewHTTPError(http.StatusNotFound, err)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	return c.NoContent(http.StatusOK)
}
