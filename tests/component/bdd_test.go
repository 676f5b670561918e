//go:build component
// +build component

package component

import (
	"net/http"
	"time"

	"github.com/rbroggi/slotcast/internal/core/model"
)

var t0 = time.Date(2030, 3, 1, 10, 0, 0, 0, time.UTC)

func (s *ComponentTestSuite) TestRegisterIdentity() {
	_, when, then := s.gherkin()

	when().
		aRegistrationRequestIsIssued().
		theIdentityLogsIn("u1")

	then().
		theStatusOf("u1", true).
		theStatusOf("u2", false).
		theRegistrationEventHidesTheEmail()
}

func (s *ComponentTestSuite) TestDuplicateRegistration() {
	given, when, then := s.gherkin()

	given().
		aRegistrationRequestIsIssued()

	when().
		theSameRegistrationIsIssuedAgain()

	then().
		theResponseFailsWith(http.StatusConflict, "DuplicateResource")
}

func (s *ComponentTestSuite) TestUpdateProfile() {
	given, when, then := s.gherkin()

	given().
		aLoggedInIdentity("u1", "a@x.com")

	when().
		theProfileGetsUpdated("Bob")

	then().
		anEventWillEventuallyBeProduced(model.EventIdentityUpdated, func(event model.Event) {
			s.Require().Equal("Bob", event.Identity.UserName)
		})
}

func (s *ComponentTestSuite) TestSlotDuration() {
	given, when, then := s.gherkin()

	given().
		aLoggedInIdentity("u1", "a@x.com").
		aSlotIsCreated(t0, 30).
		theSlotLastsMinutes(30)

	when().
		theSlotEndIsMovedTo(t0.Add(45 * time.Minute))

	then().
		theSlotLastsMinutes(45)
}

func (s *ComponentTestSuite) TestBookSlotAttendance() {
	given, when, then := s.gherkin()

	given().
		anExistingIdentity("u2", "b@x.com").
		aLoggedInIdentity("u1", "a@x.com").
		aSlotIsCreated(t0, 30)

	when().
		theSlotIsBooked().
		anAttendeeIsAdded("u2").
		anAttendeeIsAdded("u2")

	then().
		theSessionIs(model.SessionStatusFilling, 1).
		anAttendeeIsRemoved("u2").
		theSessionIs(model.SessionStatusFilling, 0)
}

func (s *ComponentTestSuite) TestProtectedRoutesRequireAToken() {
	_, when, then := s.gherkin()

	when().
		aSlotCreationWithoutTokenIsIssued()

	then().
		theResponseFailsWith(http.StatusUnauthorized, "Unauthorized")
}

func (s *ComponentTestSuite) aSlotCreationWithoutTokenIsIssued() *ComponentTestSuite {
	s.accessToken = ""
	s.post("/slot/create", map[string]any{"category": "A"})
	return s
}
