package models

import (
	"encoding/json"
	"errors"
	"strconv"
)

type WorkOrderStatus string

const (
	WorkOrderStatusScheduled  WorkOrderStatus = "scheduled"
	WorkOrderStatusConfirmed  WorkOrderStatus = "confirmed"
	WorkOrderStatusInProgress WorkOrderStatus = "in_progress"
	WorkOrderStatusPaused     WorkOrderStatus = "paused"
	WorkOrderStatusCompleted  WorkOrderStatus = "completed"
	WorkOrderStatusCancelled  WorkOrderStatus = "cancelled"
	WorkOrderStatusBlocked    WorkOrderStatus = "blocked"
)

var AllWorkOrderStatuses = []WorkOrderStatus{
	WorkOrderStatusScheduled,
	WorkOrderStatusConfirmed,
	WorkOrderStatusInProgress,
	WorkOrderStatusPaused,
	WorkOrderStatusCompleted,
	WorkOrderStatusCancelled,
	WorkOrderStatusBlocked,
}

func (s WorkOrderStatus) IsValid() bool {
	switch s {
	case WorkOrderStatusScheduled, WorkOrderStatusConfirmed, WorkOrderStatusInProgress,
		WorkOrderStatusPaused, WorkOrderStatusCompleted, WorkOrderStatusCancelled, WorkOrderStatusBlocked:
		return true
	}
	return false
}

// IsTerminal reports completed and cancelled; leaving them is a correction.
func (s WorkOrderStatus) IsTerminal() bool {
	return s == WorkOrderStatusCompleted || s == WorkOrderStatusCancelled
}

func (s *WorkOrderStatus) UnmarshalJSON(b []byte) error {
	str, err := unquote(b, "work order status")
	if err != nil {
		return err
	}
	v := WorkOrderStatus(str)
	if !v.IsValid() {
		return errors.New("invalid work order status " + strconv.Quote(str))
	}
	*s = v
	return nil
}

type AnswerKind string

const (
	AnswerKindBoolean      AnswerKind = "boolean"
	AnswerKindText         AnswerKind = "text"
	AnswerKindNumber       AnswerKind = "number"
	AnswerKindCurrency     AnswerKind = "currency"
	AnswerKindDate         AnswerKind = "date"
	AnswerKindTime         AnswerKind = "time"
	AnswerKindSingleChoice AnswerKind = "single_choice"
	AnswerKindMultiChoice  AnswerKind = "multi_choice"
	AnswerKindPhoto        AnswerKind = "photo"
	AnswerKindSignature    AnswerKind = "signature"
)

func (k AnswerKind) IsValid() bool {
	switch k {
	case AnswerKindBoolean, AnswerKindText, AnswerKindNumber, AnswerKindCurrency, AnswerKindDate,
		AnswerKindTime, AnswerKindSingleChoice, AnswerKindMultiChoice, AnswerKindPhoto, AnswerKindSignature:
		return true
	}
	return false
}

// IsChoice reports the kinds that carry an options list.
func (k AnswerKind) IsChoice() bool {
	return k == AnswerKindSingleChoice || k == AnswerKindMultiChoice
}

func (k *AnswerKind) UnmarshalJSON(b []byte) error {
	str, err := unquote(b, "answer kind")
	if err != nil {
		return err
	}
	v := AnswerKind(str)
	if !v.IsValid() {
		return errors.New("invalid answer kind " + strconv.Quote(str))
	}
	*k = v
	return nil
}

type HistoryKind string

const (
	HistoryKindCreation        HistoryKind = "creation"
	HistoryKindStatusChange    HistoryKind = "status-change"
	HistoryKindCrewChange      HistoryKind = "crew-change"
	HistoryKindPhotoAdded      HistoryKind = "photo-added"
	HistoryKindChecklistChange HistoryKind = "checklist-change"
	HistoryKindEdit            HistoryKind = "edit"
	HistoryKindComment         HistoryKind = "comment"
)

func (k HistoryKind) IsValid() bool {
	switch k {
	case HistoryKindCreation, HistoryKindStatusChange, HistoryKindCrewChange, HistoryKindPhotoAdded,
		HistoryKindChecklistChange, HistoryKindEdit, HistoryKindComment:
		return true
	}
	return false
}

func (k *HistoryKind) UnmarshalJSON(b []byte) error {
	str, err := unquote(b, "history kind")
	if err != nil {
		return err
	}
	v := HistoryKind(str)
	if !v.IsValid() {
		return errors.New("invalid history kind " + strconv.Quote(str))
	}
	*k = v
	return nil
}

func unquote(b []byte, what string) (string, error) {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return "", errors.New(what + " must be string")
	}
	return str, nil
}
