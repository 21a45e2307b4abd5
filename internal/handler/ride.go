package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"syncway/internal/domain"
	"syncway/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService *service.RideService
	dispatcher  EventDispatcher
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService, dispatcher EventDispatcher) *RideHandler {
	return &RideHandler{
		rideService: rideService,
		dispatcher:  dispatcher,
	}
}

// CreateRideRequest is the HTTP request body for creating a ride.
type CreateRideRequest struct {
	UserID        string  `json:"userId"`
	UserName      string  `json:"userName"`
	UserPhone     string  `json:"userPhone"`
	UserEmail     string  `json:"userEmail"`
	StartLocation string  `json:"startLocation"`
	EndLocation   string  `json:"endLocation"`
	Distance      float64 `json:"distance"`
	Fare          float64 `json:"fare"`
	RideType      string  `json:"rideType"`
	Passengers    int     `json:"passengers"`
	RideDate      string  `json:"rideDate"`
	RideTime      string  `json:"rideTime"`
}

// ClaimRideRequest is the HTTP request body for claiming a ride.
type ClaimRideRequest struct {
	DriverID    string `json:"driverId"`
	DriverName  string `json:"driverName"`
	DriverPhone string `json:"driverPhone"`
	DriverEmail string `json:"driverEmail"`
}

// UnclaimRideRequest is the HTTP request body for releasing a claim.
// UserType is "user" when the requester releases the driver and "driver"
// when the driver backs out.
type UnclaimRideRequest struct {
	UserID   string `json:"userId"`
	UserType string `json:"userType"`
}

// CancelRideRequest is the HTTP request body for cancelling a ride.
type CancelRideRequest struct {
	UserID string `json:"userId"`
}

// RideResponse wraps a single ride.
type RideResponse struct {
	Success bool             `json:"success"`
	Ride    *domain.RideView `json:"ride"`
}

// RideListResponse wraps a list of rides.
type RideListResponse struct {
	Success bool              `json:"success"`
	Rides   []domain.RideView `json:"rides"`
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}

	result, err := h.rideService.CreateRide(c.Request.Context(), service.CreateRideRequest{
		RequesterID:    req.UserID,
		RequesterName:  req.UserName,
		RequesterPhone: req.UserPhone,
		RequesterEmail: req.UserEmail,
		StartLocation:  req.StartLocation,
		EndLocation:    req.EndLocation,
		DistanceMiles:  req.Distance,
		Fare:           req.Fare,
		RideType:       req.RideType,
		Passengers:     req.Passengers,
		RideDate:       req.RideDate,
		RideTime:       req.RideTime,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.respondResult(c, http.StatusCreated, result)
}

// ListAvailable handles GET /v1/rides/available
func (h *RideHandler) ListAvailable(c *gin.Context) {
	rides, err := h.rideService.ListAvailable(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, RideListResponse{Success: true, Rides: domain.RideViews(rides)})
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.rideService.GetRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	view := ride.View()
	respondJSON(c, http.StatusOK, RideResponse{Success: true, Ride: &view})
}

// ListByRequester handles GET /v1/rides/requester/:userId
func (h *RideHandler) ListByRequester(c *gin.Context) {
	rides, err := h.rideService.ListByRequester(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, RideListResponse{Success: true, Rides: domain.RideViews(rides)})
}

// ListByDriver handles GET /v1/rides/driver/:driverId
func (h *RideHandler) ListByDriver(c *gin.Context) {
	rides, err := h.rideService.ListByDriver(c.Request.Context(), c.Param("driverId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, RideListResponse{Success: true, Rides: domain.RideViews(rides)})
}

// ClaimRide handles PUT /v1/rides/:id/claim
func (h *RideHandler) ClaimRide(c *gin.Context) {
	var req ClaimRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}

	result, err := h.rideService.ClaimRide(c.Request.Context(), service.ClaimRideRequest{
		RideID:      c.Param("id"),
		DriverID:    req.DriverID,
		DriverName:  req.DriverName,
		DriverPhone: req.DriverPhone,
		DriverEmail: req.DriverEmail,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.respondResult(c, http.StatusOK, result)
}

// UnclaimRide handles PUT /v1/rides/:id/unclaim
func (h *RideHandler) UnclaimRide(c *gin.Context) {
	var req UnclaimRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}

	result, err := h.rideService.UnclaimRide(c.Request.Context(), service.UnclaimRideRequest{
		RideID:    c.Param("id"),
		ActorID:   req.UserID,
		ActorRole: actorRole(req.UserType),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.respondResult(c, http.StatusOK, result)
}

// CancelRide handles PUT /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	var req CancelRideRequest
	// An empty body is allowed; the service decides whether the actor is required.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c)
			return
		}
	}

	result, err := h.rideService.CancelRide(c.Request.Context(), service.CancelRideRequest{
		RideID:  c.Param("id"),
		ActorID: req.UserID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.respondResult(c, http.StatusOK, result)
}

func (h *RideHandler) respondResult(c *gin.Context, code int, result *service.Result) {
	h.dispatcher.DispatchAsync(c.Request.Context(), result.Events)
	view := result.Ride.View()
	respondJSON(c, code, RideResponse{Success: true, Ride: &view})
}

// actorRole maps the client's account type onto the side of the ride it acts for.
func actorRole(userType string) service.ActorRole {
	switch userType {
	case string(domain.UserRoleUser), string(service.ActorRequester):
		return service.ActorRequester
	case string(domain.UserRoleDriver):
		return service.ActorDriver
	default:
		return service.ActorRole(userType)
	}
}
