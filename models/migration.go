package models

import (
	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) error {
	err := db.AutoMigrate(
		&ChecklistTemplate{}, &ChecklistTemplateItem{},
		&ChecklistInstance{}, &ChecklistResponseItem{},
		&WorkOrder{}, &ServiceLine{}, &CrewAssignment{}, &VehicleAssignment{}, &ExtraCost{},
		&WorkOrderPhoto{}, &WorkOrderSignature{},
		&History{},
		&SequenceCounter{},
	)
	if err != nil {
		return wrapPersistence("migrate", err)
	}
	return nil
}
