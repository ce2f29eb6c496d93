package models_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fieldops/workorder_backend/models"
)

func TestWorkOrderPhotoLifecycle(t *testing.T) {
	e, storage := newTestEngine(t)
	ctx := context.Background()
	wo := createWorkOrder(t, e, nil)

	original, _ := storage.Store(ctx, []byte("jpeg"), "image/jpeg")
	thumb, _ := storage.Store(ctx, []byte("thumb"), "image/jpeg")
	photo, err := e.AddWorkOrderPhoto(ctx, testActor, wo.ID, models.NewWorkOrderPhoto{Uri: original, ThumbnailUri: thumb, Caption: "Panel before"})
	if err != nil {
		t.Fatalf("AddWorkOrderPhoto: %v", err)
	}
	if added := histories(t, e, wo.ID, kindPtr(models.HistoryKindPhotoAdded)); len(added) != 1 || added[0].Description != "Panel before" {
		t.Fatalf("photo events = %+v", added)
	}

	photos, err := e.ListWorkOrderPhotos(ctx, wo.ID)
	if err != nil || len(photos) != 1 {
		t.Fatalf("photos = %v, %v", photos, err)
	}

	if err := e.RemoveWorkOrderPhoto(ctx, testActor, wo.ID, photo.ID); err != nil {
		t.Fatalf("RemoveWorkOrderPhoto: %v", err)
	}
	if len(storage.Objects) != 0 || len(storage.Removed) != 2 {
		t.Fatalf("objects=%d removed=%v", len(storage.Objects), storage.Removed)
	}

	err = e.RemoveWorkOrderPhoto(ctx, testActor, wo.ID, photo.ID)
	var nfe *models.NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("second remove err = %v", err)
	}
}

func TestPhotoOnMissingWorkOrder(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.AddWorkOrderPhoto(context.Background(), testActor, 404, models.NewWorkOrderPhoto{Uri: "mem://blob/1"})
	var nfe *models.NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("err = %v", err)
	}
}

func TestWorkOrderSignature(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	wo := createWorkOrder(t, e, nil)

	tests := []struct {
		name      string
		input     models.NewWorkOrderSignature
		wantField string
	}{
		{"missing signer", models.NewWorkOrderSignature{Uri: "mem://sig", SignerDocument: "529.982.247-25"}, "signer_name"},
		{"bad document", models.NewWorkOrderSignature{Uri: "mem://sig", SignerName: "Ana", SignerDocument: "111.111.111-11"}, "signer_document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.AddWorkOrderSignature(ctx, testActor, wo.ID, tt.input)
			var ve *models.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.wantField {
				t.Fatalf("err = %v", err)
			}
		})
	}

	sig, err := e.AddWorkOrderSignature(ctx, testActor, wo.ID, models.NewWorkOrderSignature{
		Uri:            "mem://sig",
		SignerName:     "  Ana Souza ",
		SignerDocument: "529.982.247-25",
	})
	if err != nil {
		t.Fatalf("AddWorkOrderSignature: %v", err)
	}
	if sig.SignerName != "Ana Souza" || sig.SignerDocument != "52998224725" {
		t.Fatalf("signature = %+v", sig)
	}
	list, err := e.ListWorkOrderSignatures(ctx, wo.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("signatures = %v, %v", list, err)
	}
}
