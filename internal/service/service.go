// Package service реализует бизнес-логику маркетплейса заданий.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/AYUSH1442006/nexi-backend/internal/explain"
	"github.com/AYUSH1442006/nexi-backend/internal/model"
	"github.com/AYUSH1442006/nexi-backend/internal/payment"
	"github.com/AYUSH1442006/nexi-backend/internal/repository"
	"github.com/AYUSH1442006/nexi-backend/internal/scoring"
)

// ErrInvalidCredentials возвращается при неверной паре email/пароль.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidSignature возвращается при несовпадении подписи платёжного шлюза.
	ErrInvalidSignature = errors.New("invalid payment signature")
	// ErrTaskNotCompleted возвращается при попытке оставить отзыв по незавершённому заданию.
	ErrTaskNotCompleted = errors.New("can only review completed tasks")
	// ErrNotParticipant возвращается, если автор отзыва не участвовал в задании.
	ErrNotParticipant = errors.New("reviewer is not a participant of the task")
	// ErrGatewayUnavailable возвращается, если платёжный шлюз не настроен или недоступен.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Таймаут одного обращения к сервису пояснений при ранжировании ставок.
const explainTimeout = 3 * time.Second

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, u *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)

	CreateTask(ctx context.Context, t *model.Task) error
	GetTaskByID(ctx context.Context, id uuid.UUID) (*model.Task, error)
	GetOpenTasks(ctx context.Context) ([]model.Task, error)
	GetTasksByCategory(ctx context.Context, category string) ([]model.Task, error)
	SearchTasks(ctx context.Context, keyword string) ([]model.Task, error)
	GetTasksByPoster(ctx context.Context, posterID uuid.UUID) ([]model.Task, error)
	GetTasksByAssignee(ctx context.Context, assigneeID uuid.UUID) ([]model.Task, error)
	UpdateTaskInfo(ctx context.Context, taskID, actorID uuid.UUID, upd repository.TaskUpdate) (*model.Task, error)
	DeleteTask(ctx context.Context, taskID, actorID uuid.UUID) error
	StartTask(ctx context.Context, taskID, actorID uuid.UUID) (*model.Task, error)
	CompleteTask(ctx context.Context, taskID, actorID uuid.UUID) (*model.Task, bool, error)

	CreateBid(ctx context.Context, b *model.Bid) error
	GetBidByID(ctx context.Context, id uuid.UUID) (*model.Bid, error)
	GetBidsByTask(ctx context.Context, taskID uuid.UUID) ([]model.Bid, error)
	GetBidsByBidder(ctx context.Context, bidderID uuid.UUID) ([]model.Bid, error)
	AcceptBid(ctx context.Context, bidID, actorID uuid.UUID) (*model.Bid, error)
	RejectBid(ctx context.Context, bidID, actorID uuid.UUID) error
	DeleteBid(ctx context.Context, bidID, actorID uuid.UUID) error

	GetWallet(ctx context.Context, userID uuid.UUID) (*model.Wallet, error)
	CreditWallet(ctx context.Context, userID uuid.UUID, amountCents int64, reference string) (int64, error)
	GetTransactions(ctx context.Context, userID uuid.UUID) ([]model.Transaction, error)
	SettleBid(ctx context.Context, bidID, payerID uuid.UUID, reference string) (int64, error)

	CreateReview(ctx context.Context, rev *model.Review) error
	DeleteReview(ctx context.Context, reviewID, actorID uuid.UUID) error
	GetReviewsByUser(ctx context.Context, userID uuid.UUID) ([]model.Review, error)
	GetReviewsByTask(ctx context.Context, taskID uuid.UUID) ([]model.Review, error)
}

// Gateway описывает контракт создания заказов в платёжном шлюзе.
type Gateway interface {
	CreateOrder(ctx context.Context, amountCents int64, receipt string) (*payment.Order, error)
}

// Service содержит бизнес-логику маркетплейса заданий.
type Service struct {
	repo          Repository
	explainer     explain.Explainer
	gateway       Gateway
	gatewayKeyID  string
	gatewaySecret string
}

// NewService создаёт новый сервис с указанным репозиторием и внешними клиентами.
func NewService(repo Repository, explainer explain.Explainer, gateway Gateway, gatewayKeyID, gatewaySecret string) *Service {
	return &Service{
		repo:          repo,
		explainer:     explainer,
		gateway:       gateway,
		gatewayKeyID:  gatewayKeyID,
		gatewaySecret: gatewaySecret,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterParams содержит данные регистрации нового пользователя.
type RegisterParams struct {
	Email    string
	Name     string
	Password string
	Phone    string
	Bio      string
	Role     string
	Skills   []string
	Location *model.GeoLocation
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, p RegisterParams) (uuid.UUID, error) {
	role := p.Role
	if role == "" {
		role = "BOTH"
	}
	skills := p.Skills
	if skills == nil {
		skills = []string{}
	}

	u := &model.User{
		ID:           uuid.New(),
		Email:        p.Email,
		Name:         p.Name,
		PasswordHash: hashPassword(p.Email, p.Password),
		Phone:        p.Phone,
		Bio:          p.Bio,
		Role:         role,
		Skills:       skills,
		Location:     p.Location,
	}

	if err := s.repo.CreateUser(ctx, u); err != nil {
		return uuid.Nil, err
	}
	return u.ID, nil
}

// AuthenticateUser проверяет email и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (uuid.UUID, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return uuid.Nil, err
	}

	hashed := hashPassword(email, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return uuid.Nil, ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(email + ":" + password))
	return sum[:]
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// TaskParams содержит данные нового или обновляемого задания.
type TaskParams struct {
	Title          string
	Description    string
	Category       string
	Budget         float64
	Deadline       string
	Location       *model.GeoLocation
	RequiredSkills []string
}

// CreateTask создаёт задание в статусе OPEN от имени указанного автора.
func (s *Service) CreateTask(ctx context.Context, actorID uuid.UUID, p TaskParams) (*model.Task, error) {
	if p.Budget < 0 {
		return nil, errors.New("budget must be non-negative")
	}

	poster, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	skills := p.RequiredSkills
	if skills == nil {
		skills = []string{}
	}

	t := &model.Task{
		ID:             uuid.New(),
		Title:          p.Title,
		Description:    p.Description,
		Category:       p.Category,
		BudgetCents:    toCents(p.Budget),
		Deadline:       p.Deadline,
		Location:       p.Location,
		RequiredSkills: skills,
		PosterID:       poster.ID,
		PosterName:     poster.Name,
		Status:         model.TaskStatusOpen,
	}

	if err := s.repo.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTask возвращает задание по идентификатору.
func (s *Service) GetTask(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	return s.repo.GetTaskByID(ctx, id)
}

// GetOpenTasks возвращает все открытые задания.
func (s *Service) GetOpenTasks(ctx context.Context) ([]model.Task, error) {
	return s.repo.GetOpenTasks(ctx)
}

// GetTasksByCategory возвращает задания указанной категории.
func (s *Service) GetTasksByCategory(ctx context.Context, category string) ([]model.Task, error) {
	return s.repo.GetTasksByCategory(ctx, category)
}

// SearchTasks ищет задания по ключевому слову в названии.
func (s *Service) SearchTasks(ctx context.Context, keyword string) ([]model.Task, error) {
	return s.repo.SearchTasks(ctx, keyword)
}

// GetTasksByPoster возвращает задания, размещённые пользователем.
func (s *Service) GetTasksByPoster(ctx context.Context, posterID uuid.UUID) ([]model.Task, error) {
	return s.repo.GetTasksByPoster(ctx, posterID)
}

// GetTasksByAssignee возвращает задания, назначенные пользователю.
func (s *Service) GetTasksByAssignee(ctx context.Context, assigneeID uuid.UUID) ([]model.Task, error) {
	return s.repo.GetTasksByAssignee(ctx, assigneeID)
}

// UpdateTask обновляет описательные поля задания. Статус не меняется.
func (s *Service) UpdateTask(ctx context.Context, taskID, actorID uuid.UUID, p TaskParams) (*model.Task, error) {
	if p.Budget < 0 {
		return nil, errors.New("budget must be non-negative")
	}

	return s.repo.UpdateTaskInfo(ctx, taskID, actorID, repository.TaskUpdate{
		Title:          p.Title,
		Description:    p.Description,
		Category:       p.Category,
		BudgetCents:    toCents(p.Budget),
		Deadline:       p.Deadline,
		Location:       p.Location,
		RequiredSkills: p.RequiredSkills,
	})
}

// DeleteTask удаляет задание от имени автора.
func (s *Service) DeleteTask(ctx context.Context, taskID, actorID uuid.UUID) error {
	return s.repo.DeleteTask(ctx, taskID, actorID)
}

// StartTask переводит задание в работу от имени исполнителя.
func (s *Service) StartTask(ctx context.Context, taskID, actorID uuid.UUID) (*model.Task, error) {
	return s.repo.StartTask(ctx, taskID, actorID)
}

// CompleteTask завершает задание от имени исполнителя. Второй результат —
// признак того, что запись автора задания не нашлась при обновлении счётчиков.
func (s *Service) CompleteTask(ctx context.Context, taskID, actorID uuid.UUID) (*model.Task, bool, error) {
	return s.repo.CompleteTask(ctx, taskID, actorID)
}

// BidParams содержит данные новой ставки.
type BidParams struct {
	TaskID        uuid.UUID
	Amount        float64
	Message       string
	EstimatedTime string
}

// PlaceBid размещает ставку PENDING от имени указанного исполнителя.
func (s *Service) PlaceBid(ctx context.Context, actorID uuid.UUID, p BidParams) (*model.Bid, error) {
	if p.Amount <= 0 {
		return nil, errors.New("bid amount must be positive")
	}

	bidder, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	b := &model.Bid{
		ID:            uuid.New(),
		TaskID:        p.TaskID,
		BidderID:      bidder.ID,
		BidderName:    bidder.Name,
		AmountCents:   toCents(p.Amount),
		Message:       p.Message,
		EstimatedTime: p.EstimatedTime,
		Status:        model.BidStatusPending,
	}

	if err := s.repo.CreateBid(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// GetBidsByTask возвращает ставки задания.
func (s *Service) GetBidsByTask(ctx context.Context, taskID uuid.UUID) ([]model.Bid, error) {
	return s.repo.GetBidsByTask(ctx, taskID)
}

// GetBidsByBidder возвращает ставки пользователя.
func (s *Service) GetBidsByBidder(ctx context.Context, bidderID uuid.UUID) ([]model.Bid, error) {
	return s.repo.GetBidsByBidder(ctx, bidderID)
}

// AcceptBid принимает ставку от имени автора задания. Остальные PENDING-ставки
// задания отклоняются той же транзакцией.
func (s *Service) AcceptBid(ctx context.Context, bidID, actorID uuid.UUID) (*model.Bid, error) {
	return s.repo.AcceptBid(ctx, bidID, actorID)
}

// RejectBid отклоняет ставку от имени автора задания.
func (s *Service) RejectBid(ctx context.Context, bidID, actorID uuid.UUID) error {
	return s.repo.RejectBid(ctx, bidID, actorID)
}

// DeleteBid удаляет непринятую ставку от имени её автора.
func (s *Service) DeleteBid(ctx context.Context, bidID, actorID uuid.UUID) error {
	return s.repo.DeleteBid(ctx, bidID, actorID)
}

// RankedBid описывает ставку с баллом, пояснением и данными исполнителя.
type RankedBid struct {
	BidID        uuid.UUID
	Amount       float64
	BidderName   string
	BidderRating float64
	Score        float64
	Confidence   int
	Explanation  string
}

// RankBids ранжирует ставки задания по убыванию балла. Равные баллы сохраняют
// исходный порядок ставок. Недоступность сервиса пояснений не срывает
// ранжирование: вместо текста подставляется фиксированная заглушка.
func (s *Service) RankBids(ctx context.Context, taskID uuid.UUID) ([]RankedBid, error) {
	task, err := s.repo.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	bids, err := s.repo.GetBidsByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if len(bids) == 0 {
		return []RankedBid{}, nil
	}

	ranked := make([]RankedBid, 0, len(bids))
	for i := range bids {
		bid := &bids[i]

		bidder, err := s.repo.GetUserByID(ctx, bid.BidderID)
		if err != nil {
			return nil, fmt.Errorf("load bidder %s: %w", bid.BidderID, err)
		}

		score := scoring.Score(bidder, task, bid)

		ranked = append(ranked, RankedBid{
			BidID:        bid.ID,
			Amount:       fromCents(bid.AmountCents),
			BidderName:   bidder.Name,
			BidderRating: bidder.Rating,
			Score:        score,
			Confidence:   confidence(score),
			Explanation:  s.explainBid(ctx, bidder, task, bid, score),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return ranked, nil
}

func (s *Service) explainBid(ctx context.Context, user *model.User, task *model.Task, bid *model.Bid, score float64) string {
	if s.explainer == nil {
		return explain.Fallback
	}

	ctx, cancel := context.WithTimeout(ctx, explainTimeout)
	defer cancel()

	text, err := s.explainer.Explain(ctx, user, task, bid, score)
	if err != nil {
		return explain.Fallback
	}
	return text
}

func confidence(score float64) int {
	c := int(math.Round(score * 4))
	if c > 100 {
		c = 100
	}
	return c
}

// GetWallet возвращает кошелёк пользователя, создавая пустой при первом обращении.
func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	return s.repo.GetWallet(ctx, userID)
}

// AddMoney зачисляет средства на кошелёк и возвращает новый баланс.
func (s *Service) AddMoney(ctx context.Context, userID uuid.UUID, amount float64) (float64, error) {
	cents := toCents(amount)
	if cents <= 0 {
		return 0, errors.New("amount must be positive")
	}

	balance, err := s.repo.CreditWallet(ctx, userID, cents, "Money added to wallet")
	if err != nil {
		return 0, err
	}
	return fromCents(balance), nil
}

// GetTransactions возвращает историю операций по кошельку пользователя.
func (s *Service) GetTransactions(ctx context.Context, userID uuid.UUID) ([]model.Transaction, error) {
	return s.repo.GetTransactions(ctx, userID)
}

// PayFromWallet оплачивает принятую ставку с кошелька её автора и возвращает
// остаток баланса. Списание, переход ставки в PAID и задания в IN_PROGRESS —
// одна атомарная операция репозитория.
func (s *Service) PayFromWallet(ctx context.Context, bidID, actorID uuid.UUID) (float64, error) {
	bid, err := s.repo.GetBidByID(ctx, bidID)
	if err != nil {
		return 0, err
	}

	reference := fmt.Sprintf("Task Payment: %s", bid.TaskID)
	balance, err := s.repo.SettleBid(ctx, bidID, actorID, reference)
	if err != nil {
		return 0, err
	}
	return fromCents(balance), nil
}

// PaymentOrder описывает заказ на оплату, подготовленный для клиента.
type PaymentOrder struct {
	OrderID  string
	Amount   int64
	Currency string
	KeyID    string
}

// CreatePaymentOrder создаёт заказ в платёжном шлюзе для принятой ставки.
// Разрешено только автору ставки.
func (s *Service) CreatePaymentOrder(ctx context.Context, bidID, actorID uuid.UUID) (*PaymentOrder, error) {
	bid, err := s.repo.GetBidByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.BidderID != actorID {
		return nil, repository.ErrNotBidder
	}
	if bid.Status != model.BidStatusAccepted {
		return nil, repository.ErrBidNotPayable
	}
	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}

	order, err := s.gateway.CreateOrder(ctx, bid.AmountCents, "bid_"+bid.ID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrGatewayUnavailable, err)
	}

	return &PaymentOrder{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		KeyID:    s.gatewayKeyID,
	}, nil
}

// ConfirmPayment проверяет подпись callback-а шлюза и проводит расчёт по ставке.
// Проверка и списание образуют одну логическую операцию: ставка остаётся
// ACCEPTED, если списание не удалось.
func (s *Service) ConfirmPayment(ctx context.Context, bidID, actorID uuid.UUID, orderID, paymentID, signature string) (float64, error) {
	if !payment.VerifySignature(orderID, paymentID, signature, s.gatewaySecret) {
		return 0, ErrInvalidSignature
	}

	bid, err := s.repo.GetBidByID(ctx, bidID)
	if err != nil {
		return 0, err
	}

	reference := fmt.Sprintf("Payment for task: %s (Payment ID: %s)", bid.TaskTitle, paymentID)
	balance, err := s.repo.SettleBid(ctx, bidID, actorID, reference)
	if err != nil {
		return 0, err
	}
	return fromCents(balance), nil
}

// ReviewParams содержит данные нового отзыва.
type ReviewParams struct {
	TaskID  uuid.UUID
	Rating  int
	Comment string
}

// SubmitReview создаёт отзыв по завершённому заданию. Автор задания оценивает
// исполнителя и наоборот; рейтинг оценённого пользователя пересчитывается
// атомарно с созданием отзыва. Повторный отзыв по тому же заданию отклоняется.
func (s *Service) SubmitReview(ctx context.Context, actorID uuid.UUID, p ReviewParams) (*model.Review, error) {
	if p.Rating < 1 || p.Rating > 5 {
		return nil, errors.New("rating must be between 1 and 5")
	}

	task, err := s.repo.GetTaskByID(ctx, p.TaskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.TaskStatusCompleted {
		return nil, ErrTaskNotCompleted
	}

	isPoster := task.PosterID == actorID
	isAssignee := task.AssigneeID != nil && *task.AssigneeID == actorID
	if !isPoster && !isAssignee {
		return nil, ErrNotParticipant
	}

	var reviewedUserID uuid.UUID
	if isPoster {
		if task.AssigneeID == nil {
			return nil, ErrNotParticipant
		}
		reviewedUserID = *task.AssigneeID
	} else {
		reviewedUserID = task.PosterID
	}

	reviewer, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	rev := &model.Review{
		ID:             uuid.New(),
		TaskID:         task.ID,
		ReviewerID:     reviewer.ID,
		ReviewerName:   reviewer.Name,
		ReviewedUserID: reviewedUserID,
		Rating:         p.Rating,
		Comment:        p.Comment,
	}

	if err := s.repo.CreateReview(ctx, rev); err != nil {
		return nil, err
	}
	return rev, nil
}

// DeleteReview удаляет отзыв от имени его автора и пересчитывает рейтинг.
func (s *Service) DeleteReview(ctx context.Context, reviewID, actorID uuid.UUID) error {
	return s.repo.DeleteReview(ctx, reviewID, actorID)
}

// GetReviewsByUser возвращает отзывы, полученные пользователем.
func (s *Service) GetReviewsByUser(ctx context.Context, userID uuid.UUID) ([]model.Review, error) {
	return s.repo.GetReviewsByUser(ctx, userID)
}

// GetReviewsByTask возвращает отзывы по заданию.
func (s *Service) GetReviewsByTask(ctx context.Context, taskID uuid.UUID) ([]model.Review, error) {
	return s.repo.GetReviewsByTask(ctx, taskID)
}

func toCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func fromCents(v int64) float64 {
	return float64(v) / 100
}
