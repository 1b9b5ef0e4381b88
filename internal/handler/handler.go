// Package handler содержит HTTP-обработчики API сервиса nexi.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AYUSH1442006/nexi-backend/internal/middleware"
	"github.com/AYUSH1442006/nexi-backend/internal/model"
	"github.com/AYUSH1442006/nexi-backend/internal/repository"
	"github.com/AYUSH1442006/nexi-backend/internal/service"
	"github.com/AYUSH1442006/nexi-backend/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, p service.RegisterParams) (uuid.UUID, error)
	AuthenticateUser(ctx context.Context, email, password string) (uuid.UUID, error)

	CreateTask(ctx context.Context, actorID uuid.UUID, p service.TaskParams) (*model.Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (*model.Task, error)
	GetOpenTasks(ctx context.Context) ([]model.Task, error)
	GetTasksByCategory(ctx context.Context, category string) ([]model.Task, error)
	SearchTasks(ctx context.Context, keyword string) ([]model.Task, error)
	GetTasksByPoster(ctx context.Context, posterID uuid.UUID) ([]model.Task, error)
	GetTasksByAssignee(ctx context.Context, assigneeID uuid.UUID) ([]model.Task, error)
	UpdateTask(ctx context.Context, taskID, actorID uuid.UUID, p service.TaskParams) (*model.Task, error)
	DeleteTask(ctx context.Context, taskID, actorID uuid.UUID) error
	StartTask(ctx context.Context, taskID, actorID uuid.UUID) (*model.Task, error)
	CompleteTask(ctx context.Context, taskID, actorID uuid.UUID) (*model.Task, bool, error)

	PlaceBid(ctx context.Context, actorID uuid.UUID, p service.BidParams) (*model.Bid, error)
	GetBidsByTask(ctx context.Context, taskID uuid.UUID) ([]model.Bid, error)
	GetBidsByBidder(ctx context.Context, bidderID uuid.UUID) ([]model.Bid, error)
	AcceptBid(ctx context.Context, bidID, actorID uuid.UUID) (*model.Bid, error)
	RejectBid(ctx context.Context, bidID, actorID uuid.UUID) error
	DeleteBid(ctx context.Context, bidID, actorID uuid.UUID) error
	RankBids(ctx context.Context, taskID uuid.UUID) ([]service.RankedBid, error)

	GetWallet(ctx context.Context, userID uuid.UUID) (*model.Wallet, error)
	AddMoney(ctx context.Context, userID uuid.UUID, amount float64) (float64, error)
	GetTransactions(ctx context.Context, userID uuid.UUID) ([]model.Transaction, error)
	PayFromWallet(ctx context.Context, bidID, actorID uuid.UUID) (float64, error)
	CreatePaymentOrder(ctx context.Context, bidID, actorID uuid.UUID) (*service.PaymentOrder, error)
	ConfirmPayment(ctx context.Context, bidID, actorID uuid.UUID, orderID, paymentID, signature string) (float64, error)

	SubmitReview(ctx context.Context, actorID uuid.UUID, p service.ReviewParams) (*model.Review, error)
	DeleteReview(ctx context.Context, reviewID, actorID uuid.UUID) error
	GetReviewsByUser(ctx context.Context, userID uuid.UUID) ([]model.Review, error)
	GetReviewsByTask(ctx context.Context, taskID uuid.UUID) ([]model.Review, error)
}

// Handler реализует HTTP-обработчики API сервиса nexi.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

// respondError переводит доменные ошибки в HTTP-статусы.
func (h *Handler) respondError(w http.ResponseWriter, err error, msg string) {
	var status int
	switch {
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrTaskNotFound),
		errors.Is(err, repository.ErrBidNotFound),
		errors.Is(err, repository.ErrReviewNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrNotTaskPoster),
		errors.Is(err, repository.ErrNotBidder),
		errors.Is(err, repository.ErrNotAssignee),
		errors.Is(err, repository.ErrNotReviewer),
		errors.Is(err, service.ErrNotParticipant):
		status = http.StatusForbidden
	case errors.Is(err, repository.ErrUserExists),
		errors.Is(err, repository.ErrReviewExists),
		errors.Is(err, repository.ErrTaskNotOpen):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
	case errors.Is(err, repository.ErrOwnTaskBid),
		errors.Is(err, repository.ErrTaskNotStartable),
		errors.Is(err, repository.ErrTaskNotCompletable),
		errors.Is(err, repository.ErrBidNotPending),
		errors.Is(err, repository.ErrBidNotPayable),
		errors.Is(err, repository.ErrBidAccepted),
		errors.Is(err, service.ErrTaskNotCompleted),
		errors.Is(err, service.ErrInvalidSignature):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrGatewayUnavailable):
		status = http.StatusBadGateway
	default:
		h.logger.Error(msg, zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) actorID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	if err := validation.Struct(v); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return false
	}
	return true
}

type registerRequest struct {
	Email    string             `json:"email" validate:"required,email"`
	Name     string             `json:"name" validate:"required"`
	Password string             `json:"password" validate:"required,min=6"`
	Phone    string             `json:"phone"`
	Bio      string             `json:"bio"`
	Role     string             `json:"role" validate:"omitempty,oneof=POSTER TASKER BOTH"`
	Skills   []string           `json:"skills"`
	Location *model.GeoLocation `json:"location"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), service.RegisterParams{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Phone:    req.Phone,
		Bio:      req.Bio,
		Role:     req.Role,
		Skills:   req.Skills,
		Location: req.Location,
	})
	if err != nil {
		h.respondError(w, err, "register user error")
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type taskResponse struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	Category       string             `json:"category"`
	Budget         float64            `json:"budget"`
	Deadline       string             `json:"deadline,omitempty"`
	Location       *model.GeoLocation `json:"location,omitempty"`
	RequiredSkills []string           `json:"requiredSkills"`
	PosterID       string             `json:"posterId"`
	PosterName     string             `json:"posterName"`
	AssigneeID     string             `json:"assigneeId,omitempty"`
	AssigneeName   string             `json:"assigneeName,omitempty"`
	Status         string             `json:"status"`
	BidCount       int                `json:"bidCount"`
	CreatedAt      string             `json:"createdAt"`
	UpdatedAt      string             `json:"updatedAt"`
}

func toTaskResponse(t *model.Task) taskResponse {
	resp := taskResponse{
		ID:             t.ID.String(),
		Title:          t.Title,
		Description:    t.Description,
		Category:       t.Category,
		Budget:         float64(t.BudgetCents) / 100,
		Deadline:       t.Deadline,
		Location:       t.Location,
		RequiredSkills: t.RequiredSkills,
		PosterID:       t.PosterID.String(),
		PosterName:     t.PosterName,
		AssigneeName:   t.AssigneeName,
		Status:         string(t.Status),
		BidCount:       t.BidCount,
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      t.UpdatedAt.Format(time.RFC3339),
	}
	if t.AssigneeID != nil {
		resp.AssigneeID = t.AssigneeID.String()
	}
	return resp
}

func toTaskResponses(tasks []model.Task) []taskResponse {
	resp := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		resp = append(resp, toTaskResponse(&tasks[i]))
	}
	return resp
}

type taskRequest struct {
	Title          string             `json:"title" validate:"required"`
	Description    string             `json:"description"`
	Category       string             `json:"category"`
	Budget         float64            `json:"budget" validate:"gte=0"`
	Deadline       string             `json:"deadline"`
	Location       *model.GeoLocation `json:"location"`
	RequiredSkills []string           `json:"requiredSkills"`
}

func (r taskRequest) toParams() service.TaskParams {
	return service.TaskParams{
		Title:          r.Title,
		Description:    r.Description,
		Category:       r.Category,
		Budget:         r.Budget,
		Deadline:       r.Deadline,
		Location:       r.Location,
		RequiredSkills: r.RequiredSkills,
	}
}

// CreateTask создаёт новое задание от имени текущего пользователя.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	var req taskRequest
	if !h.decode(w, r, &req) {
		return
	}

	task, err := h.service.CreateTask(r.Context(), actorID, req.toParams())
	if err != nil {
		h.respondError(w, err, "create task error")
		return
	}

	h.writeJSON(w, http.StatusOK, toTaskResponse(task))
}

// GetOpenTasks возвращает все открытые задания.
func (h *Handler) GetOpenTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.GetOpenTasks(r.Context())
	if err != nil {
		h.respondError(w, err, "get open tasks error")
		return
	}
	h.writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

// GetTasksByCategory возвращает задания указанной категории.
func (h *Handler) GetTasksByCategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")

	tasks, err := h.service.GetTasksByCategory(r.Context(), category)
	if err != nil {
		h.respondError(w, err, "get tasks by category error")
		return
	}
	h.writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

// SearchTasks ищет задания по ключевому слову в названии.
func (h *Handler) SearchTasks(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")

	tasks, err := h.service.SearchTasks(r.Context(), keyword)
	if err != nil {
		h.respondError(w, err, "search tasks error")
		return
	}
	h.writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

// GetTask возвращает задание по идентификатору.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.pathID(w, r, "taskID")
	if !ok {
		return
	}

	task, err := h.service.GetTask(r.Context(), taskID)
	if err != nil {
		h.respondError(w, err, "get task error")
		return
	}
	h.writeJSON(w, http.StatusOK, toTaskResponse(task))
}

// GetMyTasks возвращает задания, размещённые текущим пользователем.
func (h *Handler) GetMyTasks(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	tasks, err := h.service.GetTasksByPoster(r.Context(), actorID)
	if err != nil {
		h.respondError(w, err, "get my tasks error")
		return
	}
	h.writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

// GetAssignedTasks возвращает задания, назначенные текущему пользователю.
func (h *Handler) GetAssignedTasks(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	tasks, err := h.service.GetTasksByAssignee(r.Context(), actorID)
	if err != nil {
		h.respondError(w, err, "get assigned tasks error")
		return
	}
	h.writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

// UpdateTask обновляет описательные поля задания.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	taskID, ok := h.pathID(w, r, "taskID")
	if !ok {
		return
	}

	var req taskRequest
	if !h.decode(w, r, &req) {
		return
	}

	task, err := h.service.UpdateTask(r.Context(), taskID, actorID, req.toParams())
	if err != nil {
		h.respondError(w, err, "update task error")
		return
	}
	h.writeJSON(w, http.StatusOK, toTaskResponse(task))
}

// DeleteTask удаляет задание.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	taskID, ok := h.pathID(w, r, "taskID")
	if !ok {
		return
	}

	if err := h.service.DeleteTask(r.Context(), taskID, actorID); err != nil {
		h.respondError(w, err, "delete task error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// StartTask переводит задание в работу.
func (h *Handler) StartTask(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	taskID, ok := h.pathID(w, r, "taskID")
	if !ok {
		return
	}

	task, err := h.service.StartTask(r.Context(), taskID, actorID)
	if err != nil {
		h.respondError(w, err, "start task error")
		return
	}
	h.writeJSON(w, http.StatusOK, toTaskResponse(task))
}

// CompleteTask завершает задание.
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	taskID, ok := h.pathID(w, r, "taskID")
	if !ok {
		return
	}

	task, posterMissing, err := h.service.CompleteTask(r.Context(), taskID, actorID)
	if err != nil {
		h.respondError(w, err, "complete task error")
		return
	}
	if posterMissing {
		h.logger.Warn("task completed but poster record not found",
			zap.String("taskID", taskID.String()))
	}

	h.writeJSON(w, http.StatusOK, toTaskResponse(task))
}

type bidResponse struct {
	ID            string  `json:"id"`
	TaskID        string  `json:"taskId"`
	TaskTitle     string  `json:"taskTitle"`
	BidderID      string  `json:"bidderId"`
	BidderName    string  `json:"bidderName"`
	Amount        float64 `json:"amount"`
	Message       string  `json:"message,omitempty"`
	EstimatedTime string  `json:"estimatedTime,omitempty"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"createdAt"`
}

func toBidResponse(b *model.Bid) bidResponse {
	return bidResponse{
		ID:            b.ID.String(),
		TaskID:        b.TaskID.String(),
		TaskTitle:     b.TaskTitle,
		BidderID:      b.BidderID.String(),
		BidderName:    b.BidderName,
		Amount:        float64(b.AmountCents) / 100,
		Message:       b.Message,
		EstimatedTime: b.EstimatedTime,
		Status:        string(b.Status),
		CreatedAt:     b.CreatedAt.Format(time.RFC3339),
	}
}

func toBidResponses(bids []model.Bid) []bidResponse {
	resp := make([]bidResponse, 0, len(bids))
	for i := range bids {
		resp = append(resp, toBidResponse(&bids[i]))
	}
	return resp
}

type placeBidRequest struct {
	TaskID        string  `json:"taskId" validate:"required,uuid"`
	Amount        float64 `json:"amount" validate:"gt=0"`
	Message       string  `json:"message"`
	EstimatedTime string  `json:"estimatedTime"`
}

// PlaceBid размещает ставку на задание.
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	var req placeBidRequest
	if !h.decode(w, r, &req) {
		return
	}

	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid taskId"})
		return
	}

	bid, err := h.service.PlaceBid(r.Context(), actorID, service.BidParams{
		TaskID:        taskID,
		Amount:        req.Amount,
		Message:       req.Message,
		EstimatedTime: req.EstimatedTime,
	})
	if err != nil {
		h.respondError(w, err, "place bid error")
		return
	}

	h.writeJSON(w, http.StatusOK, toBidResponse(bid))
}

// GetBidsForTask возвращает ставки по заданию.
func (h *Handler) GetBidsForTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.pathID(w, r, "taskID")
	if !ok {
		return
	}

	bids, err := h.service.GetBidsByTask(r.Context(), taskID)
	if err != nil {
		h.respondError(w, err, "get bids for task error")
		return
	}
	h.writeJSON(w, http.StatusOK, toBidResponses(bids))
}

// GetMyBids возвращает ставки текущего пользователя.
func (h *Handler) GetMyBids(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	bids, err := h.service.GetBidsByBidder(r.Context(), actorID)
	if err != nil {
		h.respondError(w, err, "get my bids error")
		return
	}
	h.writeJSON(w, http.StatusOK, toBidResponses(bids))
}

// AcceptBid принимает ставку. Задание назначается исполнителю, остальные
// PENDING-ставки отклоняются.
func (h *Handler) AcceptBid(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	bidID, ok := h.pathID(w, r, "bidID")
	if !ok {
		return
	}

	bid, err := h.service.AcceptBid(r.Context(), bidID, actorID)
	if err != nil {
		h.respondError(w, err, "accept bid error")
		return
	}
	h.writeJSON(w, http.StatusOK, toBidResponse(bid))
}

// RejectBid отклоняет ставку.
func (h *Handler) RejectBid(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	bidID, ok := h.pathID(w, r, "bidID")
	if !ok {
		return
	}

	if err := h.service.RejectBid(r.Context(), bidID, actorID); err != nil {
		h.respondError(w, err, "reject bid error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DeleteBid удаляет ставку её автора.
func (h *Handler) DeleteBid(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	bidID, ok := h.pathID(w, r, "bidID")
	if !ok {
		return
	}

	if err := h.service.DeleteBid(r.Context(), bidID, actorID); err != nil {
		h.respondError(w, err, "delete bid error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

type rankedBidResponse struct {
	BidID        string  `json:"bidId"`
	Amount       float64 `json:"amount"`
	BidderName   string  `json:"bidderName"`
	BidderRating float64 `json:"bidderRating"`
	Score        float64 `json:"aiScore"`
	Confidence   int     `json:"confidence"`
	Explanation  string  `json:"aiReason"`
}

// RankBids возвращает ставки задания, отсортированные по убыванию балла.
func (h *Handler) RankBids(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.pathID(w, r, "taskID")
	if !ok {
		return
	}

	ranked, err := h.service.RankBids(r.Context(), taskID)
	if err != nil {
		h.respondError(w, err, "rank bids error")
		return
	}

	resp := make([]rankedBidResponse, 0, len(ranked))
	for _, rb := range ranked {
		resp = append(resp, rankedBidResponse{
			BidID:        rb.BidID.String(),
			Amount:       rb.Amount,
			BidderName:   rb.BidderName,
			BidderRating: rb.BidderRating,
			Score:        rb.Score,
			Confidence:   rb.Confidence,
			Explanation:  rb.Explanation,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type walletResponse struct {
	Balance float64 `json:"balance"`
}

// GetWallet возвращает кошелёк текущего пользователя.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	wallet, err := h.service.GetWallet(r.Context(), actorID)
	if err != nil {
		h.respondError(w, err, "get wallet error")
		return
	}

	h.writeJSON(w, http.StatusOK, walletResponse{
		Balance: float64(wallet.BalanceCents) / 100,
	})
}

type addMoneyRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

// AddMoney зачисляет средства на кошелёк текущего пользователя.
func (h *Handler) AddMoney(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	var req addMoneyRequest
	if !h.decode(w, r, &req) {
		return
	}

	balance, err := h.service.AddMoney(r.Context(), actorID, req.Amount)
	if err != nil {
		h.respondError(w, err, "add money error")
		return
	}

	h.writeJSON(w, http.StatusOK, walletResponse{Balance: balance})
}

type transactionResponse struct {
	Type      string  `json:"type"`
	Amount    float64 `json:"amount"`
	Reference string  `json:"reference"`
	CreatedAt string  `json:"createdAt"`
}

// GetTransactions возвращает историю операций по кошельку текущего пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	transactions, err := h.service.GetTransactions(r.Context(), actorID)
	if err != nil {
		h.respondError(w, err, "get transactions error")
		return
	}

	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		resp = append(resp, transactionResponse{
			Type:      string(tx.Type),
			Amount:    float64(tx.AmountCents) / 100,
			Reference: tx.Reference,
			CreatedAt: tx.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// PayFromWallet оплачивает принятую ставку с кошелька текущего пользователя.
func (h *Handler) PayFromWallet(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	bidID, ok := h.pathID(w, r, "bidID")
	if !ok {
		return
	}

	balance, err := h.service.PayFromWallet(r.Context(), bidID, actorID)
	if err != nil {
		h.respondError(w, err, "pay from wallet error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"message":          "Payment successful",
		"remainingBalance": balance,
	})
}

type createOrderRequest struct {
	BidID string `json:"bidId" validate:"required,uuid"`
}

// CreatePaymentOrder создаёт заказ на оплату ставки в платёжном шлюзе.
func (h *Handler) CreatePaymentOrder(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	bidID, err := uuid.Parse(req.BidID)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid bidId"})
		return
	}

	order, err := h.service.CreatePaymentOrder(r.Context(), bidID, actorID)
	if err != nil {
		h.respondError(w, err, "create payment order error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"orderId":  order.OrderID,
		"amount":   order.Amount,
		"currency": order.Currency,
		"keyId":    order.KeyID,
	})
}

type verifyPaymentRequest struct {
	BidID     string `json:"bidId" validate:"required,uuid"`
	OrderID   string `json:"orderId" validate:"required"`
	PaymentID string `json:"paymentId" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// VerifyPayment проверяет подпись callback-а платёжного шлюза и проводит расчёт.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	bidID, err := uuid.Parse(req.BidID)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid bidId"})
		return
	}

	balance, err := h.service.ConfirmPayment(r.Context(), bidID, actorID,
		req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		h.respondError(w, err, "verify payment error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"message":          "Payment verified successfully",
		"remainingBalance": balance,
	})
}

type reviewResponse struct {
	ID             string `json:"id"`
	TaskID         string `json:"taskId"`
	ReviewerID     string `json:"reviewerId"`
	ReviewerName   string `json:"reviewerName"`
	ReviewedUserID string `json:"reviewedUserId"`
	Rating         int    `json:"rating"`
	Comment        string `json:"comment,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

func toReviewResponse(rev *model.Review) reviewResponse {
	return reviewResponse{
		ID:             rev.ID.String(),
		TaskID:         rev.TaskID.String(),
		ReviewerID:     rev.ReviewerID.String(),
		ReviewerName:   rev.ReviewerName,
		ReviewedUserID: rev.ReviewedUserID.String(),
		Rating:         rev.Rating,
		Comment:        rev.Comment,
		CreatedAt:      rev.CreatedAt.Format(time.RFC3339),
	}
}

type submitReviewRequest struct {
	TaskID  string `json:"taskId" validate:"required,uuid"`
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment"`
}

// SubmitReview создаёт отзыв по завершённому заданию.
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	var req submitReviewRequest
	if !h.decode(w, r, &req) {
		return
	}

	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid taskId"})
		return
	}

	review, err := h.service.SubmitReview(r.Context(), actorID, service.ReviewParams{
		TaskID:  taskID,
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		h.respondError(w, err, "submit review error")
		return
	}

	h.writeJSON(w, http.StatusOK, toReviewResponse(review))
}

// GetReviewsForUser возвращает отзывы, полученные пользователем.
func (h *Handler) GetReviewsForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}

	reviews, err := h.service.GetReviewsByUser(r.Context(), userID)
	if err != nil {
		h.respondError(w, err, "get reviews for user error")
		return
	}

	resp := make([]reviewResponse, 0, len(reviews))
	for i := range reviews {
		resp = append(resp, toReviewResponse(&reviews[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetReviewsForTask возвращает отзывы по заданию.
func (h *Handler) GetReviewsForTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.pathID(w, r, "taskID")
	if !ok {
		return
	}

	reviews, err := h.service.GetReviewsByTask(r.Context(), taskID)
	if err != nil {
		h.respondError(w, err, "get reviews for task error")
		return
	}

	resp := make([]reviewResponse, 0, len(reviews))
	for i := range reviews {
		resp = append(resp, toReviewResponse(&reviews[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// DeleteReview удаляет отзыв текущего пользователя.
func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	reviewID, ok := h.pathID(w, r, "reviewID")
	if !ok {
		return
	}

	if err := h.service.DeleteReview(r.Context(), reviewID, actorID); err != nil {
		h.respondError(w, err, "delete review error")
		return
	}
	w.WriteHeader(http.StatusOK)
}
