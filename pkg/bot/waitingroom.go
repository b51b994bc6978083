package bot

import (
	"context"
	"errors"
	"time"

	"github.com/cloudgroundcontrol/meetbot/pkg/notify"
	"github.com/cloudgroundcontrol/meetbot/pkg/provider"
)

// runWaitingRoom opens the meeting page and blocks on the provider's join
// flow. The wait is guarded by the waiting-room timeout and by the end
// reason flag, polled once a second, so an external stop interrupts it
// within one tick.
func (m *Machine) runWaitingRoom(ctx context.Context) (MeetingState, error) {
	m.mu.Lock()
	creds := m.mctx.Credentials
	session := m.mctx.Session
	m.mu.Unlock()

	link := m.deps.Provider.GetMeetingLink(creds.ID, creds.Password, m.cfg.Role, m.cfg.BotName)

	m.notifyAsync(notify.EventJoiningCall)

	page, err := m.deps.Provider.OpenMeetingPage(ctx, session, link)
	if err != nil {
		return StateError, provider.NewJoinError(provider.CodeInternalError, err)
	}
	m.mu.Lock()
	m.mctx.Page = page
	m.mu.Unlock()

	// Dialog dismissal runs in the background for the rest of the join
	if m.deps.Janitor != nil {
		obsCtx, obsCancel := context.WithCancel(ctx)
		defer obsCancel()
		go m.deps.Janitor.DismissDialogs(obsCtx, page)
	}

	m.notifyAsync(notify.EventInWaitingRoom)

	if err := m.joinWithTimeout(ctx, page); err != nil {
		return StateError, err
	}
	return StateInCall, nil
}

func (m *Machine) joinWithTimeout(ctx context.Context, page provider.Page) error {
	joinCtx, cancel := context.WithTimeout(ctx, m.cfg.WaitingRoomTimeout)
	defer cancel()

	params := m.joinParams()
	done := make(chan error, 1)
	go func() {
		done <- m.deps.Provider.JoinMeeting(joinCtx, page, m.stopFlagged, params)
	}()

	ticker := time.NewTicker(m.tun.stopPoll)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err == nil {
				return nil
			}
			return classifyJoinError(err, joinCtx)
		case <-ticker.C:
			if m.endReason() != "" || m.stopFlagged() {
				cancel()
				<-done
				return provider.NewJoinError(provider.CodeAPIRequest, errors.New("stop requested while waiting to join"))
			}
		case <-joinCtx.Done():
			<-done
			return classifyJoinError(joinCtx.Err(), joinCtx)
		}
	}
}

// classifyJoinError distinguishes "not accepted" from "timed out" from
// everything else, each with its own terminal code.
func classifyJoinError(err error, joinCtx context.Context) error {
	if je, ok := provider.AsJoinError(err); ok {
		return je
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(joinCtx.Err(), context.DeadlineExceeded) {
		return provider.NewJoinError(provider.CodeTimeoutWaitingToStart, err)
	}
	return provider.NewJoinError(provider.CodeInternalError, err)
}

func (m *Machine) joinParams() provider.JoinParams {
	return provider.JoinParams{
		BotName:            m.cfg.BotName,
		Role:               m.cfg.Role,
		RecordingMode:      m.cfg.RecordingMode,
		WaitingRoomTimeout: m.cfg.WaitingRoomTimeout,
	}
}
