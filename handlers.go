package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fieldops/workorder_backend/middlewares"
	"github.com/fieldops/workorder_backend/models"
	"github.com/fieldops/workorder_backend/models/reports"
	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

type apiHandler struct {
	engine atomic.Pointer[models.Engine]
}

func (h *apiHandler) getEngine() *models.Engine {
	return h.engine.Load()
}

func (h *apiHandler) setEngine(e *models.Engine) {
	h.engine.Store(e)
}

// respondError maps engine errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var (
		ve  *models.ValidationError
		iae *models.InvalidAnswerError
		nfe *models.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": ve.Error(), "field": ve.Field})
	case errors.As(err, &iae):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": iae.Error(), "item_id": iae.ItemId, "kind": iae.Kind})
	case errors.As(err, &nfe):
		c.JSON(http.StatusNotFound, gin.H{"error": nfe.Error()})
	case errors.Is(err, models.ErrConcurrencyConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathInt(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return v, true
}

func bindBody(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func queryDate(c *gin.Context, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s: expected YYYY-MM-DD", name)})
		return nil, false
	}
	return &t, true
}

// templates

func (h *apiHandler) createTemplate(c *gin.Context) {
	var input models.NewChecklistTemplate
	if !bindBody(c, &input) {
		return
	}
	tpl, err := h.getEngine().CreateChecklistTemplate(c.Request.Context(), middlewares.ActorFromRequest(c), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

func (h *apiHandler) listTemplates(c *gin.Context) {
	var category *string
	if v, ok := c.GetQuery("category"); ok {
		category = &v
	}
	list, err := h.getEngine().ListChecklistTemplates(c.Request.Context(), category)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *apiHandler) getTemplate(c *gin.Context) {
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	tpl, err := h.getEngine().GetChecklistTemplate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (h *apiHandler) updateTemplate(c *gin.Context) {
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	var input models.NewChecklistTemplate
	if !bindBody(c, &input) {
		return
	}
	tpl, err := h.getEngine().UpdateChecklistTemplate(c.Request.Context(), middlewares.ActorFromRequest(c), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (h *apiHandler) deleteTemplate(c *gin.Context) {
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	if err := h.getEngine().SoftDeleteChecklistTemplate(c.Request.Context(), middlewares.ActorFromRequest(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// duplicateTemplate answers 204 when the source template does not exist.
func (h *apiHandler) duplicateTemplate(c *gin.Context) {
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	tpl, err := h.getEngine().DuplicateChecklistTemplate(c.Request.Context(), middlewares.ActorFromRequest(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if tpl == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

// work orders

func (h *apiHandler) createWorkOrder(c *gin.Context) {
	var input models.NewWorkOrder
	if !bindBody(c, &input) {
		return
	}
	wo, err := h.getEngine().CreateWorkOrder(c.Request.Context(), middlewares.ActorFromRequest(c), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, wo)
}

func (h *apiHandler) listWorkOrders(c *gin.Context) {
	var filter models.WorkOrderFilter
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		status := models.WorkOrderStatus(v)
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		filter.Status = &status
	}
	if v := strings.TrimSpace(c.Query("client_id")); v != "" {
		clientId, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client_id"})
			return
		}
		filter.ClientId = &clientId
	}
	var ok bool
	if filter.From, ok = queryDate(c, "from"); !ok {
		return
	}
	if filter.To, ok = queryDate(c, "to"); !ok {
		return
	}
	list, err := h.getEngine().ListWorkOrders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *apiHandler) getWorkOrder(c *gin.Context) {
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	wo, err := h.getEngine().GetWorkOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wo)
}

func (h *apiHandler) updateWorkOrder(c *gin.Context) {
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	var input models.WorkOrderUpdate
	if !bindBody(c, &input) {
		return
	}
	wo, err := h.getEngine().UpdateWorkOrder(c.Request.Context(), middlewares.ActorFromRequest(c), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wo)
}

type transitionRequest struct {
	Status models.WorkOrderStatus `json:"status" binding:"required"`
}

func (h *apiHandler) transitionWorkOrder(c *gin.Context) {
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if !bindBody(c, &req) {
		return
	}
	wo, err := h.getEngine().TransitionWorkOrder(c.Request.Context(), middlewares.ActorFromRequest(c), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wo)
}

type commentRequest struct {
	Text string `json:"text"`
}

func (h *apiHandler) addComment(c *gin.Context) {
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	var req commentRequest
	if !bindBody(c, &req) {
		return
	}
	history, err := h.getEngine().AddWorkOrderComment(c.Request.Context(), middlewares.ActorFromRequest(c), id, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, history)
}

func (h *apiHandler) listHistory(c *gin.Context) {
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	var kind *models.HistoryKind
	if v := strings.TrimSpace(c.Query("kind")); v != "" {
		k := models.HistoryKind(v)
		if !k.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kind"})
			return
		}
		kind = &k
	}
	list, err := h.getEngine().ListHistories(c.Request.Context(), id, kind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *apiHandler) workOrderCosts(c *gin.Context) {
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	summary, err := h.getEngine().SummarizeWorkOrderCosts(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// child rows share one shape: list, add with a typed body, remove by child id.

func listChildren[T any](h *apiHandler, list func(e *models.Engine, c *gin.Context, id int) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathInt(c, "id")
		if !ok {
			return
		}
		rows, err := list(h.getEngine(), c, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func addChild[In any, Out any](h *apiHandler, add func(e *models.Engine, c *gin.Context, id int, input In) (Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathInt(c, "id")
		if !ok {
			return
		}
		var input In
		if !bindBody(c, &input) {
			return
		}
		row, err := add(h.getEngine(), c, id, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, row)
	}
}

func removeChild(h *apiHandler, remove func(e *models.Engine, c *gin.Context, id int, childId int) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathInt(c, "id")
		if !ok {
			return
		}
		childId, ok := pathInt(c, "childId")
		if !ok {
			return
		}
		if err := remove(h.getEngine(), c, id, childId); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *apiHandler) listCrew(c *gin.Context) {
	listChildren(h, func(e *models.Engine, c *gin.Context, id int) ([]*models.CrewAssignment, error) {
		return e.ListCrewAssignments(c.Request.Context(), id)
	})(c)
}

func (h *apiHandler) addCrew(c *gin.Context) {
	addChild(h, func(e *models.Engine, c *gin.Context, id int, input models.NewCrewAssignment) (*models.CrewAssignment, error) {
		return e.AddCrewAssignment(c.Request.Context(), middlewares.ActorFromRequest(c), id, input)
	})(c)
}

func (h *apiHandler) removeCrew(c *gin.Context) {
	removeChild(h, func(e *models.Engine, c *gin.Context, id int, childId int) error {
		return e.RemoveCrewAssignment(c.Request.Context(), middlewares.ActorFromRequest(c), id, childId)
	})(c)
}

func (h *apiHandler) listVehicles(c *gin.Context) {
	listChildren(h, func(e *models.Engine, c *gin.Context, id int) ([]*models.VehicleAssignment, error) {
		return e.ListVehicleAssignments(c.Request.Context(), id)
	})(c)
}

func (h *apiHandler) addVehicle(c *gin.Context) {
	addChild(h, func(e *models.Engine, c *gin.Context, id int, input models.NewVehicleAssignment) (*models.VehicleAssignment, error) {
		return e.AddVehicleAssignment(c.Request.Context(), middlewares.ActorFromRequest(c), id, input)
	})(c)
}

func (h *apiHandler) removeVehicle(c *gin.Context) {
	removeChild(h, func(e *models.Engine, c *gin.Context, id int, childId int) error {
		return e.RemoveVehicleAssignment(c.Request.Context(), middlewares.ActorFromRequest(c), id, childId)
	})(c)
}

func (h *apiHandler) listServiceLines(c *gin.Context) {
	listChildren(h, func(e *models.Engine, c *gin.Context, id int) ([]*models.ServiceLine, error) {
		return e.ListServiceLines(c.Request.Context(), id)
	})(c)
}

func (h *apiHandler) addServiceLine(c *gin.Context) {
	addChild(h, func(e *models.Engine, c *gin.Context, id int, input models.NewServiceLine) (*models.ServiceLine, error) {
		return e.AddServiceLine(c.Request.Context(), middlewares.ActorFromRequest(c), id, input)
	})(c)
}

func (h *apiHandler) removeServiceLine(c *gin.Context) {
	removeChild(h, func(e *models.Engine, c *gin.Context, id int, childId int) error {
		return e.RemoveServiceLine(c.Request.Context(), middlewares.ActorFromRequest(c), id, childId)
	})(c)
}

func (h *apiHandler) listExtraCosts(c *gin.Context) {
	listChildren(h, func(e *models.Engine, c *gin.Context, id int) ([]*models.ExtraCost, error) {
		return e.ListExtraCosts(c.Request.Context(), id)
	})(c)
}

func (h *apiHandler) addExtraCost(c *gin.Context) {
	addChild(h, func(e *models.Engine, c *gin.Context, id int, input models.NewExtraCost) (*models.ExtraCost, error) {
		return e.AddExtraCost(c.Request.Context(), middlewares.ActorFromRequest(c), id, input)
	})(c)
}

func (h *apiHandler) removeExtraCost(c *gin.Context) {
	removeChild(h, func(e *models.Engine, c *gin.Context, id int, childId int) error {
		return e.RemoveExtraCost(c.Request.Context(), middlewares.ActorFromRequest(c), id, childId)
	})(c)
}

func (h *apiHandler) listPhotos(c *gin.Context) {
	listChildren(h, func(e *models.Engine, c *gin.Context, id int) ([]*models.WorkOrderPhoto, error) {
		return e.ListWorkOrderPhotos(c.Request.Context(), id)
	})(c)
}

func (h *apiHandler) addPhoto(c *gin.Context) {
	addChild(h, func(e *models.Engine, c *gin.Context, id int, input models.NewWorkOrderPhoto) (*models.WorkOrderPhoto, error) {
		return e.AddWorkOrderPhoto(c.Request.Context(), middlewares.ActorFromRequest(c), id, input)
	})(c)
}

func (h *apiHandler) removePhoto(c *gin.Context) {
	removeChild(h, func(e *models.Engine, c *gin.Context, id int, childId int) error {
		return e.RemoveWorkOrderPhoto(c.Request.Context(), middlewares.ActorFromRequest(c), id, childId)
	})(c)
}

func (h *apiHandler) listSignatures(c *gin.Context) {
	listChildren(h, func(e *models.Engine, c *gin.Context, id int) ([]*models.WorkOrderSignature, error) {
		return e.ListWorkOrderSignatures(c.Request.Context(), id)
	})(c)
}

func (h *apiHandler) addSignature(c *gin.Context) {
	addChild(h, func(e *models.Engine, c *gin.Context, id int, input models.NewWorkOrderSignature) (*models.WorkOrderSignature, error) {
		return e.AddWorkOrderSignature(c.Request.Context(), middlewares.ActorFromRequest(c), id, input)
	})(c)
}

// checklists

type checklistRequest struct {
	TemplateId *int                              `json:"template_id"`
	Name       *string                           `json:"name"`
	Items      []models.NewChecklistTemplateItem `json:"items"`
}

// createChecklist instantiates template_id when given, otherwise builds a freeform checklist from items.
func (h *apiHandler) createChecklist(c *gin.Context) {
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	var req checklistRequest
	if !bindBody(c, &req) {
		return
	}
	var (
		instance *models.ChecklistInstance
		err      error
	)
	actor := middlewares.ActorFromRequest(c)
	if req.TemplateId != nil {
		instance, err = h.getEngine().InstantiateChecklist(c.Request.Context(), actor, id, *req.TemplateId, req.Name)
	} else {
		name := ""
		if req.Name != nil {
			name = *req.Name
		}
		instance, err = h.getEngine().CreateFreeformChecklist(c.Request.Context(), actor, id, name, req.Items)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, instance)
}

func (h *apiHandler) listChecklists(c *gin.Context) {
	listChildren(h, func(e *models.Engine, c *gin.Context, id int) ([]*models.ChecklistInstance, error) {
		return e.ListChecklistInstances(c.Request.Context(), id)
	})(c)
}

func (h *apiHandler) getChecklist(c *gin.Context) {
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	instance, err := h.getEngine().GetChecklistInstance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, instance)
}

func (h *apiHandler) deleteChecklist(c *gin.Context) {
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	if err := h.getEngine().DeleteChecklistInstance(c.Request.Context(), middlewares.ActorFromRequest(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *apiHandler) answerChecklistItem(c *gin.Context) {
	id, ok := pathInt(c, "id")
	if !ok {
		return
	}
	itemId, ok := pathInt(c, "itemId")
	if !ok {
		return
	}
	var raw models.RawAnswer
	if !bindBody(c, &raw) {
		return
	}
	item, err := h.getEngine().AnswerChecklistItem(c.Request.Context(), middlewares.ActorFromRequest(c), id, itemId, raw)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// reports

func (h *apiHandler) costReport(c *gin.Context) {
	from, ok := queryDate(c, "from")
	if !ok {
		return
	}
	to, ok := queryDate(c, "to")
	if !ok {
		return
	}
	if from == nil || to == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to are required"})
		return
	}
	// to names a whole day.
	end := to.Add(24*time.Hour - time.Second)
	rows, err := h.getEngine().CostReport(c.Request.Context(), *from, end)
	if err != nil {
		respondError(c, err)
		return
	}
	filename := fmt.Sprintf("costs_%s_%s.xlsx", from.Format(dateLayout), to.Format(dateLayout))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)
	if err := reports.WriteCostWorkbook(c.Writer, rows); err != nil {
		_ = c.Error(err)
	}
}
