package workflow

import (
	"errors"
	"fmt"

	"github.com/mmdatafocus/lessons_backend/models"
	"github.com/mmdatafocus/lessons_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ResolveContext builds the context snapshot embedded in every ledger entry
// of a settlement event. Pure read; called exactly once per event so all
// entries of the event share identical context even if the underlying
// profiles change a moment later.
//
// A missing tutor or client profile is a hard NotFound. A missing agent is
// not: the booking simply has no agent name, never an error.
func ResolveContext(tx *gorm.DB, logger *logrus.Logger, booking *models.Booking) (models.ContextSnapshot, error) {
	var snapshot models.ContextSnapshot

	tutor, err := models.GetTutorProfileById(tx, booking.TutorId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return snapshot, fmt.Errorf("%w: tutor profile %s", utils.ErrorRecordNotFound, booking.TutorId)
		}
		return snapshot, err
	}
	client, err := models.GetClientProfileById(tx, booking.ClientId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return snapshot, fmt.Errorf("%w: client profile %s", utils.ErrorRecordNotFound, booking.ClientId)
		}
		return snapshot, err
	}

	var agentName *string
	if booking.AgentId != nil {
		agent, err := models.GetAgentProfileById(tx, *booking.AgentId)
		if err == nil {
			agentName = &agent.DisplayName
		} else if errors.Is(err, utils.ErrorRecordNotFound) {
			// Tolerated: the agent association outlived the agent profile.
			logger.WithFields(logrus.Fields{
				"booking_id": booking.ID,
				"agent_id":   *booking.AgentId,
			}).Warn("agent profile missing at settlement; settling without agent name")
		} else {
			return snapshot, err
		}
	}

	snapshot = models.ContextSnapshot{
		ServiceName:  booking.ServiceName,
		Subjects:     booking.Subjects,
		SessionDate:  booking.StartTime,
		LocationMode: booking.LocationMode,
		TutorName:    tutor.DisplayName,
		ClientName:   client.DisplayName,
		AgentName:    agentName,
	}
	return snapshot, snapshot.Validate()
}
