package models

import (
	"log"

	"github.com/mmdatafocus/lessons_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&TutorProfile{}, &ClientProfile{}, &AgentProfile{},
		&Booking{},
		&SettlementGroup{}, &Transaction{},
		&RecalculationQueueEntry{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
