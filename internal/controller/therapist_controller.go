package controller

import (
	"counseling-portal-be/internal/dto"
	"counseling-portal-be/internal/pkg/serverutils"
	"counseling-portal-be/internal/provider/contract"
	"counseling-portal-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ITherapistController interface {
	RegisterRoutes(r fiber.Router)
	List(ctx *fiber.Ctx) error
}

type therapistController struct {
	service service.ITherapistService
}

func NewTherapistController(service service.ITherapistService) ITherapistController {
	return &therapistController{service: service}
}

func (c *therapistController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/therapists")
	h.Get("/search", c.List)
}

func (c *therapistController) List(ctx *fiber.Ctx) error {
	var req dto.ListTherapistsRequest
	if err := ctx.QueryParser(&req); err != nil {
		return err
	}

	filter := contract.Filter{}
	if req.State != "" {
		filter["state"] = req.State
	}
	if req.Modality != "" {
		filter["modality"] = req.Modality
	}

	listing, err := c.service.List(ctx.Context(), filter)
	if err != nil {
		code := serverutils.StatusFor(err)
		return ctx.Status(code).JSON(fiber.Map{
			"success": false,
			"code":    code,
			"message": err.Error(),
		})
	}

	res := dto.ListTherapistsResponse{
		Therapists: make([]dto.TherapistResponse, 0, len(listing.Therapists)),
		Degraded:   listing.Degraded,
	}
	for _, t := range listing.Therapists {
		res.Therapists = append(res.Therapists, dto.TherapistResponse{
			Id:               t.Id.String(),
			FullName:         t.FullName,
			Credentials:      t.Credentials,
			Specialties:      t.Specialties,
			State:            t.State,
			Modality:         t.Modality,
			AcceptingClients: t.AcceptingClients,
			Bio:              t.Bio,
		})
	}

	message := "Therapists retrieved successfully"
	if listing.Degraded {
		message = "Therapists retrieved without filters due to a degraded backend"
	}
	return ctx.JSON(fiber.Map{
		"success": true,
		"code":    200,
		"message": message,
		"data":    res,
	})
}
