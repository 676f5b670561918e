package rest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rbroggi/slotcast/internal/core/model"
)

// authenticated rejects requests without a valid bearer credential before next runs. The token is
// read from the Authorization header, or from the token query parameter.
func (s *Server) authenticated(next endpoint) endpoint {
	return func(r *http.Request, pathParams map[string]string) (string, any, error) {
		token := bearerToken(r)
		if token == "" {
			return "", nil, model.ErrUnauthorized
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			return "", nil, err
		}
		return next(r.WithContext(context.WithValue(r.Context(), claimsKey, claims)), pathParams)
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

// claimsFrom returns the verified claims of an authenticated request.
func claimsFrom(ctx context.Context) *model.Claims {
	claims, _ := ctx.Value(claimsKey).(*model.Claims)
	if claims == nil {
		return &model.Claims{}
	}
	return claims
}

func (s *Server) register(r *http.Request, _ map[string]string) (string, any, error) {
	var req registerRequest
	if err := s.bind(r, &req).OrNil(); err != nil {
		return "", nil, err
	}

	identity, err := s.identities.Register(r.Context(), model.RegisterArgs{
		UUID:     req.UUID,
		Email:    req.Email,
		UserName: req.UserName,
		Category: req.Category,
		Image:    req.Image,
	})
	if err != nil {
		return "", nil, err
	}
	return "User registered successfully.", map[string]string{"uuid": identity.UUID}, nil
}

func (s *Server) login(r *http.Request, _ map[string]string) (string, any, error) {
	var req loginRequest
	if err := s.bind(r, &req).OrNil(); err != nil {
		return "", nil, err
	}

	resp, err := s.identities.Login(r.Context(), req.UUID)
	if err != nil {
		return "", nil, err
	}
	return "User Found.", map[string]string{"accessToken": resp.AccessToken}, nil
}

func (s *Server) status(r *http.Request, _ map[string]string) (string, any, error) {
	var req statusRequest
	if err := s.bind(r, &req).OrNil(); err != nil {
		return "", nil, err
	}

	found, err := s.identities.Status(r.Context(), req.UUID, req.UserName)
	if err != nil {
		return "", nil, err
	}
	message := "User Found."
	if !found {
		message = "User Not Found."
	}
	return message, map[string]bool{"success": found}, nil
}

// updateProfile updates the caller and re-issues its token, since the claims embed the profile.
func (s *Server) updateProfile(r *http.Request, _ map[string]string) (string, any, error) {
	var req updateProfileRequest
	if err := s.bind(r, &req).OrNil(); err != nil {
		return "", nil, err
	}

	identity, err := s.identities.UpdateProfile(r.Context(), model.UpdateProfileArgs{
		ID:       claimsFrom(r.Context()).ID,
		UserName: req.UserName,
		Category: req.Category,
	})
	if err != nil {
		return "", nil, err
	}
	token, err := s.identities.IssueToken(*identity)
	if err != nil {
		return "", nil, err
	}
	return "User updated successfully.", map[string]string{"accessToken": token}, nil
}

func (s *Server) createSlot(r *http.Request, _ map[string]string) (string, any, error) {
	var req createSlotRequest
	verr := s.bind(r, &req)
	args := model.CreateSlotArgs{
		Date:      parseDay(verr, "date", req.Date),
		StartTime: parseInstant(verr, "start_time", req.StartTime),
		EndTime:   parseInstant(verr, "end_time", req.EndTime),
		Category:  req.Category,
		OwnerID:   claimsFrom(r.Context()).ID,
	}
	if req.Charge != nil {
		args.Charge = *req.Charge
	}
	if err := verr.OrNil(); err != nil {
		return "", nil, err
	}

	slot, err := s.slots.CreateSlot(r.Context(), args)
	if err != nil {
		return "", nil, err
	}
	return "Slot created successfully.", slot, nil
}

func (s *Server) updateSlot(r *http.Request, _ map[string]string) (string, any, error) {
	var req updateSlotRequest
	verr := s.bind(r, &req)
	args := model.UpdateSlotArgs{
		ID:        req.SlotID,
		ActorID:   claimsFrom(r.Context()).ID,
		StartTime: optionalInstant(verr, "start_time", req.StartTime),
		EndTime:   optionalInstant(verr, "end_time", req.EndTime),
		Charge:    req.Charge,
	}
	if req.Date != "" {
		day := parseDay(verr, "date", req.Date)
		args.Date = &day
	}
	if req.Category != "" {
		args.Category = &req.Category
	}
	if err := verr.OrNil(); err != nil {
		return "", nil, err
	}

	slot, err := s.slots.UpdateSlot(r.Context(), args)
	if err != nil {
		return "", nil, err
	}
	return "Slot updated successfully.", slot, nil
}

func (s *Server) createSession(r *http.Request, _ map[string]string) (string, any, error) {
	var req createSessionRequest
	verr := s.bind(r, &req)
	owner := claimsFrom(r.Context()).ID

	if req.SlotID != "" {
		if err := verr.OrNil(); err != nil {
			return "", nil, err
		}
		session, err := s.sessions.BookSlot(r.Context(), model.BookSlotArgs{
			SlotID:        req.SlotID,
			OwnerID:       owner,
			AttendeeUUIDs: req.Attendees,
			Capacity:      req.Capacity,
		})
		if err != nil {
			return "", nil, err
		}
		return "Session created successfully.", session, nil
	}

	args := model.ScheduleBroadcastArgs{
		OwnerID:     owner,
		SessionName: req.SessionName,
		SessionDesc: req.SessionDesc,
		Date:        parseDay(verr, "date", req.Date),
		StartTime:   parseInstant(verr, "startTime", req.StartTime),
		Duration:    time.Duration(req.Duration * float64(time.Minute)),
		EndTime:     parseInstant(verr, "endTime", req.EndTime),
		Fee:         req.Fee,
	}
	if err := verr.OrNil(); err != nil {
		return "", nil, err
	}

	session, err := s.sessions.ScheduleBroadcast(r.Context(), args)
	if err != nil {
		return "", nil, err
	}
	return "Session created successfully.", session, nil
}

func (s *Server) deleteSession(r *http.Request, _ map[string]string) (string, any, error) {
	var req deleteSessionRequest
	if err := s.bind(r, &req).OrNil(); err != nil {
		return "", nil, err
	}

	err := s.sessions.DeleteSession(r.Context(), model.DeleteSessionArgs{
		StreamKey: req.StreamKey,
		ActorID:   claimsFrom(r.Context()).ID,
	})
	if err != nil {
		return "", nil, err
	}
	return "Session deleted successfully.", nil, nil
}

func (s *Server) addAttendee(r *http.Request, _ map[string]string) (string, any, error) {
	var req attendeeRequest
	if err := s.bind(r, &req).OrNil(); err != nil {
		return "", nil, err
	}

	session, err := s.sessions.AddAttendee(r.Context(), req.SessionID, req.UUID)
	if err != nil {
		return "", nil, err
	}
	return "Attendee added.", redactFor(claimsFrom(r.Context()).ID, *session), nil
}

func (s *Server) removeAttendee(r *http.Request, _ map[string]string) (string, any, error) {
	var req attendeeRequest
	if err := s.bind(r, &req).OrNil(); err != nil {
		return "", nil, err
	}

	session, err := s.sessions.RemoveAttendee(r.Context(), req.SessionID, req.UUID)
	if err != nil {
		return "", nil, err
	}
	return "Attendee removed.", redactFor(claimsFrom(r.Context()).ID, *session), nil
}

func (s *Server) listSessions(r *http.Request, _ map[string]string) (string, any, error) {
	var req listSessionsRequest
	verr := s.bind(r, &req)
	day := parseDay(verr, "date", req.Date)
	if err := verr.OrNil(); err != nil {
		return "", nil, err
	}

	caller := claimsFrom(r.Context()).ID
	sessions := make([]model.Session, 0)
	for session, err := range s.sessions.ListSessionsByDate(r.Context(), day) {
		if err != nil {
			return "", nil, err
		}
		sessions = append(sessions, redactFor(caller, session))
	}
	return "Sessions fetched.", sessions, nil
}

// redactFor hides the stream key and provider payload of sessions the caller does not own.
func redactFor(caller string, session model.Session) model.Session {
	if session.Stream == nil || session.OwnerID == caller {
		return session
	}
	session.Stream = &model.StreamHandle{ID: session.Stream.ID}
	return session
}
