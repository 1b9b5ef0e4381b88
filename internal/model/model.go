// Package model содержит доменные сущности маркетплейса заданий.
package model

import (
	"time"

	"github.com/google/uuid"
)

// GeoLocation задаёт координаты пользователя или задания.
type GeoLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// User представляет зарегистрированного пользователя маркетплейса.
type User struct {
	ID             uuid.UUID
	Email          string
	Name           string
	PasswordHash   []byte
	Phone          string
	Bio            string
	Role           string
	Location       *GeoLocation
	Rating         float64
	TotalReviews   int
	TasksCompleted int
	TasksPosted    int
	Skills         []string
	CreatedAt      time.Time
}

// TaskStatus описывает статус жизненного цикла задания.
type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "OPEN"
	TaskStatusAssigned   TaskStatus = "ASSIGNED"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
)

// Task описывает задание, размещённое пользователем.
type Task struct {
	ID             uuid.UUID
	Title          string
	Description    string
	Category       string
	BudgetCents    int64
	Deadline       string
	Location       *GeoLocation
	RequiredSkills []string
	PosterID       uuid.UUID
	PosterName     string
	AssigneeID     *uuid.UUID
	AssigneeName   string
	Status         TaskStatus
	BidCount       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BidStatus описывает статус ставки.
type BidStatus string

const (
	BidStatusPending  BidStatus = "PENDING"
	BidStatusAccepted BidStatus = "ACCEPTED"
	BidStatusRejected BidStatus = "REJECTED"
	BidStatusPaid     BidStatus = "PAID"
)

// Bid описывает предложение исполнителя по заданию.
type Bid struct {
	ID            uuid.UUID
	TaskID        uuid.UUID
	TaskTitle     string
	BidderID      uuid.UUID
	BidderName    string
	AmountCents   int64
	Message       string
	EstimatedTime string
	Status        BidStatus
	CreatedAt     time.Time
}

// Review описывает отзыв по завершённому заданию.
type Review struct {
	ID             uuid.UUID
	TaskID         uuid.UUID
	ReviewerID     uuid.UUID
	ReviewerName   string
	ReviewedUserID uuid.UUID
	Rating         int
	Comment        string
	CreatedAt      time.Time
}

// TransactionType описывает направление операции по кошельку.
type TransactionType string

const (
	TransactionCredit TransactionType = "CREDIT"
	TransactionDebit  TransactionType = "DEBIT"
)

// Transaction описывает одну операцию по кошельку. Записи неизменяемы.
type Transaction struct {
	Type        TransactionType
	AmountCents int64
	Reference   string
	CreatedAt   time.Time
}

// Wallet содержит баланс пользователя. Баланс равен сумме всех операций
// и не может стать отрицательным.
type Wallet struct {
	UserID       uuid.UUID
	BalanceCents int64
}
