// Package web provides HTTP handlers and REST API endpoints for template and
// record management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/gestia/gestia/pkg/lifecycle"
	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/persistence"
	"github.com/gestia/gestia/pkg/services"
)

type APIHandlers struct {
	templateService *services.Template
	recordService   *services.Record
	validator       *validator.Validate
}

func NewAPIHandlers(
	templateService *services.Template,
	recordService *services.Record,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		templateService: templateService,
		recordService:   recordService,
		validator:       validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.templateService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Gestia API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Gestia API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	organizationID := c.Query("organization_id")
	if organizationID == "" {
		return badRequest(c, "organization_id query parameter is required")
	}

	templates, err := h.templateService.List(c.Context(), organizationID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(templates)
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.templateService.Get(c.Context(), id)
	if err != nil {
		if persistence.IsTemplateNotFound(err) {
			return notFound(c, "Template not found")
		}

		return internalError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) GetTemplateByCode(c fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return badRequest(c, "Template code is required")
	}

	organizationID := c.Query("organization_id")
	if organizationID == "" {
		return badRequest(c, "organization_id query parameter is required")
	}

	template, err := h.templateService.GetByCode(c.Context(), organizationID, code)
	if err != nil {
		if persistence.IsTemplateNotFound(err) {
			return notFound(c, "Template not found")
		}

		return internalError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	var req CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template := &models.Template{
		Code:           req.Code,
		Name:           req.Name,
		Description:    req.Description,
		OrganizationID: req.OrganizationID,
		States:         req.States,
		Config:         req.Config,
		Permissions:    req.Permissions,
	}

	created, err := h.templateService.Create(c.Context(), template, req.Actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	var req UpdateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template := &models.Template{
		Name:        req.Name,
		Description: req.Description,
		States:      req.States,
		Config:      req.Config,
		Permissions: req.Permissions,
	}

	updated, err := h.templateService.Update(c.Context(), id, template, req.Actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) CloneTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	var req CloneTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	clone, err := h.templateService.Clone(c.Context(), id, req.Actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(clone)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	if err := h.templateService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// NextSequenceCode previews the code the next record of a template would
// receive. The underlying counter advances, so the returned code is reserved.
func (h *APIHandlers) NextSequenceCode(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	code, err := h.recordService.NextSequenceCode(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"code": code})
}

func (h *APIHandlers) GetRecords(c fiber.Ctx) error {
	req, err := h.parseListRecordsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.recordService.List(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"records":       result.Records,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

// parseListRecordsRequest parses and validates query parameters for listing records.
func (h *APIHandlers) parseListRecordsRequest(c fiber.Ctx) (*services.ListRecordsRequest, error) {
	req := &services.ListRecordsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	req.TemplateID = c.Query("template_id")
	req.OrganizationID = c.Query("organization_id")
	req.StateID = c.Query("state_id")
	req.Responsible = c.Query("responsible")

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetRecord(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Record ID is required")
	}

	record, err := h.recordService.Get(c.Context(), id)
	if err != nil {
		if persistence.IsRecordNotFound(err) {
			return notFound(c, "Record not found")
		}

		return internalError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) CreateRecord(c fiber.Ctx) error {
	var req CreateRecordRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	record, err := h.recordService.Create(c.Context(), lifecycle.CreateRequest{
		TemplateID:  req.TemplateID,
		Datos:       req.Datos,
		Actor:       req.Actor,
		Responsible: req.Responsible,
		Priority:    req.Priority,
		Tags:        req.Tags,
		DueDate:     req.DueDate,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

func (h *APIHandlers) ChangeRecordState(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Record ID is required")
	}

	var req ChangeStateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	record, err := h.recordService.ChangeState(c.Context(), lifecycle.ChangeStateRequest{
		RecordID:        id,
		TargetStateID:   req.TargetStateID,
		Comment:         req.Comment,
		Actor:           req.Actor,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) UpdateRecordData(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Record ID is required")
	}

	var req UpdateRecordDataRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	record, err := h.recordService.UpdateData(c.Context(), id, req.Changes, req.Actor, req.ExpectedVersion)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

// ValidateRecordCompletion reports whether the record satisfies every
// required field of its current state. Missing fields come back as a 422 so
// clients can surface them before attempting a final transition.
func (h *APIHandlers) ValidateRecordCompletion(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Record ID is required")
	}

	if err := h.recordService.ValidateCompletion(c.Context(), id); err != nil {
		if services.IsValidationError(err) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"valid":  false,
				"detail": err.Error(),
			})
		}

		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"valid": true})
}

func (h *APIHandlers) CloneRecord(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Record ID is required")
	}

	var req CloneRecordRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	clone, err := h.recordService.Clone(c.Context(), id, req.Actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(clone)
}

func (h *APIHandlers) DeleteRecord(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Record ID is required")
	}

	if err := h.recordService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
