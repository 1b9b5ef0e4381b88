// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/AYUSH1442006/nexi-backend/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим email.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrTaskNotFound возвращается, если задание не найдено.
	ErrTaskNotFound = errors.New("task not found")
	// ErrBidNotFound возвращается, если ставка не найдена.
	ErrBidNotFound = errors.New("bid not found")
	// ErrReviewNotFound возвращается, если отзыв не найден.
	ErrReviewNotFound = errors.New("review not found")
	// ErrNotTaskPoster возвращается, если операция разрешена только автору задания.
	ErrNotTaskPoster = errors.New("only the task poster may perform this operation")
	// ErrNotBidder возвращается, если операция разрешена только автору ставки.
	ErrNotBidder = errors.New("only the bidder may perform this operation")
	// ErrNotAssignee возвращается, если операция разрешена только исполнителю задания.
	ErrNotAssignee = errors.New("only the assignee may perform this operation")
	// ErrNotReviewer возвращается, если операция разрешена только автору отзыва.
	ErrNotReviewer = errors.New("only the reviewer may perform this operation")
	// ErrOwnTaskBid возвращается при попытке сделать ставку на собственное задание.
	ErrOwnTaskBid = errors.New("cannot bid on own task")
	// ErrTaskNotOpen возвращается, если задание уже не принимает ставки.
	ErrTaskNotOpen = errors.New("task is not open")
	// ErrTaskNotStartable возвращается, если задание нельзя перевести в работу.
	ErrTaskNotStartable = errors.New("task is not in assigned status")
	// ErrTaskNotCompletable возвращается, если задание нельзя завершить.
	ErrTaskNotCompletable = errors.New("task is not in progress")
	// ErrBidNotPending возвращается, если ставка уже покинула статус PENDING.
	ErrBidNotPending = errors.New("bid is not pending")
	// ErrBidNotPayable возвращается, если ставка не находится в статусе ACCEPTED.
	// Повторная оплата уже оплаченной ставки получает эту же ошибку.
	ErrBidNotPayable = errors.New("bid is not payable")
	// ErrBidAccepted возвращается при попытке удалить принятую или оплаченную ставку.
	ErrBidAccepted = errors.New("cannot delete an accepted bid")
	// ErrInsufficientBalance возвращается при попытке списания суммы, превышающей баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrReviewExists возвращается при повторном отзыве на то же задание.
	ErrReviewExists = errors.New("review already exists for this task")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure или Deadlocks.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) error {
	var lat, lng *float64
	if u.Location != nil {
		lat, lng = &u.Location.Lat, &u.Location.Lng
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, phone, bio, role, lat, lng, skills)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Phone, u.Bio, u.Role, lat, lng, u.Skills,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrUserExists, u.Email)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const userColumns = `id, email, name, password_hash, phone, bio, role, lat, lng,
	rating, total_reviews, tasks_completed, tasks_posted, skills, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var lat, lng *float64
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Phone, &u.Bio, &u.Role,
		&lat, &lng, &u.Rating, &u.TotalReviews, &u.TasksCompleted, &u.TasksPosted,
		&u.Skills, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if lat != nil && lng != nil {
		u.Location = &model.GeoLocation{Lat: *lat, Lng: *lng}
	}
	return &u, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// CreateTask сохраняет новое задание и увеличивает счётчик размещённых заданий автора.
func (r *PostgresRepository) CreateTask(ctx context.Context, t *model.Task) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var lat, lng *float64
	if t.Location != nil {
		lat, lng = &t.Location.Lat, &t.Location.Lng
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO tasks (id, title, description, category, budget, deadline, lat, lng,
		                    required_skills, poster_id, poster_name, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.Title, t.Description, t.Category, t.BudgetCents, t.Deadline, lat, lng,
		t.RequiredSkills, t.PosterID, t.PosterName, string(model.TaskStatusOpen),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET tasks_posted = tasks_posted + 1 WHERE id = $1`, t.PosterID)
	if err != nil {
		return fmt.Errorf("increment tasks posted: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const taskColumns = `id, title, description, category, budget, deadline, lat, lng,
	required_skills, poster_id, poster_name, assignee_id, assignee_name, status,
	bid_count, created_at, updated_at`

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var lat, lng *float64
	var status string
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Category, &t.BudgetCents,
		&t.Deadline, &lat, &lng, &t.RequiredSkills, &t.PosterID, &t.PosterName,
		&t.AssigneeID, &t.AssigneeName, &status, &t.BidCount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.Status = model.TaskStatus(status)
	if lat != nil && lng != nil {
		t.Location = &model.GeoLocation{Lat: *lat, Lng: *lng}
	}
	return &t, nil
}

func (r *PostgresRepository) queryTasks(ctx context.Context, query string, args ...any) ([]model.Task, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return tasks, nil
}

// GetTaskByID возвращает задание по идентификатору.
func (r *PostgresRepository) GetTaskByID(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

// GetOpenTasks возвращает все открытые задания, новые первыми.
func (r *PostgresRepository) GetOpenTasks(ctx context.Context) ([]model.Task, error) {
	return r.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = $1 ORDER BY created_at DESC`,
		string(model.TaskStatusOpen))
}

// GetTasksByCategory возвращает задания указанной категории.
func (r *PostgresRepository) GetTasksByCategory(ctx context.Context, category string) ([]model.Task, error) {
	return r.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE category = $1 ORDER BY created_at DESC`,
		category)
}

// SearchTasks ищет задания по вхождению ключевого слова в название.
func (r *PostgresRepository) SearchTasks(ctx context.Context, keyword string) ([]model.Task, error) {
	return r.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE title ILIKE '%' || $1 || '%' ORDER BY created_at DESC`,
		keyword)
}

// GetTasksByPoster возвращает задания, размещённые пользователем.
func (r *PostgresRepository) GetTasksByPoster(ctx context.Context, posterID uuid.UUID) ([]model.Task, error) {
	return r.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE poster_id = $1 ORDER BY created_at DESC`,
		posterID)
}

// GetTasksByAssignee возвращает задания, назначенные пользователю.
func (r *PostgresRepository) GetTasksByAssignee(ctx context.Context, assigneeID uuid.UUID) ([]model.Task, error) {
	return r.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE assignee_id = $1 ORDER BY created_at DESC`,
		assigneeID)
}

// TaskUpdate содержит описательные поля задания, доступные автору для изменения.
// Статус через обновление меняться не может.
type TaskUpdate struct {
	Title          string
	Description    string
	Category       string
	BudgetCents    int64
	Deadline       string
	Location       *model.GeoLocation
	RequiredSkills []string
}

// UpdateTaskInfo обновляет описательные поля задания. Разрешено только автору.
func (r *PostgresRepository) UpdateTaskInfo(ctx context.Context, taskID, actorID uuid.UUID, upd TaskUpdate) (*model.Task, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var posterID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT poster_id FROM tasks WHERE id = $1 FOR UPDATE`, taskID).Scan(&posterID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("select task: %w", err)
	}
	if posterID != actorID {
		return nil, ErrNotTaskPoster
	}

	var lat, lng *float64
	if upd.Location != nil {
		lat, lng = &upd.Location.Lat, &upd.Location.Lng
	}

	skills := upd.RequiredSkills
	if skills == nil {
		skills = []string{}
	}

	row := tx.QueryRow(ctx,
		`UPDATE tasks
		 SET title = $2, description = $3, category = $4, budget = $5, deadline = $6,
		     lat = $7, lng = $8, required_skills = $9, updated_at = now()
		 WHERE id = $1
		 RETURNING `+taskColumns,
		taskID, upd.Title, upd.Description, upd.Category, upd.BudgetCents, upd.Deadline,
		lat, lng, skills,
	)

	t, err := scanTask(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return t, nil
}

// DeleteTask удаляет задание. Разрешено только автору.
func (r *PostgresRepository) DeleteTask(ctx context.Context, taskID, actorID uuid.UUID) error {
	var posterID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT poster_id FROM tasks WHERE id = $1`, taskID).Scan(&posterID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("select task: %w", err)
	}
	if posterID != actorID {
		return ErrNotTaskPoster
	}

	if _, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, taskID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// StartTask переводит задание ASSIGNED -> IN_PROGRESS. Разрешено только исполнителю.
func (r *PostgresRepository) StartTask(ctx context.Context, taskID, actorID uuid.UUID) (*model.Task, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var assigneeID *uuid.UUID
	var status string
	err = tx.QueryRow(ctx,
		`SELECT assignee_id, status FROM tasks WHERE id = $1 FOR UPDATE`, taskID,
	).Scan(&assigneeID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("select task: %w", err)
	}
	if assigneeID == nil || *assigneeID != actorID {
		return nil, ErrNotAssignee
	}
	if model.TaskStatus(status) != model.TaskStatusAssigned {
		return nil, ErrTaskNotStartable
	}

	row := tx.QueryRow(ctx,
		`UPDATE tasks SET status = $2, updated_at = now() WHERE id = $1 RETURNING `+taskColumns,
		taskID, string(model.TaskStatusInProgress))
	t, err := scanTask(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return t, nil
}

// CompleteTask переводит задание IN_PROGRESS -> COMPLETED и увеличивает счётчики
// выполненных заданий исполнителя и автора. Возвращает признак того, что запись
// автора не нашлась: завершение при этом всё равно успешно, но расхождение стоит
// залогировать.
func (r *PostgresRepository) CompleteTask(ctx context.Context, taskID, actorID uuid.UUID) (*model.Task, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var assigneeID *uuid.UUID
	var posterID uuid.UUID
	var status string
	err = tx.QueryRow(ctx,
		`SELECT assignee_id, poster_id, status FROM tasks WHERE id = $1 FOR UPDATE`, taskID,
	).Scan(&assigneeID, &posterID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrTaskNotFound
		}
		return nil, false, fmt.Errorf("select task: %w", err)
	}
	if assigneeID == nil || *assigneeID != actorID {
		return nil, false, ErrNotAssignee
	}
	if model.TaskStatus(status) != model.TaskStatusInProgress {
		return nil, false, ErrTaskNotCompletable
	}

	row := tx.QueryRow(ctx,
		`UPDATE tasks SET status = $2, updated_at = now() WHERE id = $1 RETURNING `+taskColumns,
		taskID, string(model.TaskStatusCompleted))
	t, err := scanTask(row)
	if err != nil {
		return nil, false, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET tasks_completed = tasks_completed + 1 WHERE id = $1`, actorID,
	); err != nil {
		return nil, false, fmt.Errorf("increment assignee counter: %w", err)
	}

	cmdTag, err := tx.Exec(ctx,
		`UPDATE users SET tasks_completed = tasks_completed + 1 WHERE id = $1`, posterID)
	if err != nil {
		return nil, false, fmt.Errorf("increment poster counter: %w", err)
	}
	posterMissing := cmdTag.RowsAffected() == 0

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit tx: %w", err)
	}
	return t, posterMissing, nil
}

// CreateBid сохраняет ставку PENDING и увеличивает счётчик ставок задания.
// Денормализованные поля (название задания, имя исполнителя) заполняются здесь же.
func (r *PostgresRepository) CreateBid(ctx context.Context, b *model.Bid) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var posterID uuid.UUID
	var status, title string
	err = tx.QueryRow(ctx,
		`SELECT poster_id, status, title FROM tasks WHERE id = $1 FOR UPDATE`, b.TaskID,
	).Scan(&posterID, &status, &title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("select task: %w", err)
	}
	if posterID == b.BidderID {
		return ErrOwnTaskBid
	}
	if model.TaskStatus(status) != model.TaskStatusOpen {
		return ErrTaskNotOpen
	}

	b.TaskTitle = title
	b.Status = model.BidStatusPending

	_, err = tx.Exec(ctx,
		`INSERT INTO bids (id, task_id, task_title, bidder_id, bidder_name, amount, message, estimated_time, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.TaskID, b.TaskTitle, b.BidderID, b.BidderName, b.AmountCents,
		b.Message, b.EstimatedTime, string(b.Status),
	)
	if err != nil {
		return fmt.Errorf("insert bid: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE tasks SET bid_count = bid_count + 1, updated_at = now() WHERE id = $1`, b.TaskID)
	if err != nil {
		return fmt.Errorf("increment bid count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const bidColumns = `id, task_id, task_title, bidder_id, bidder_name, amount, message,
	estimated_time, status, created_at`

func scanBid(row pgx.Row) (*model.Bid, error) {
	var b model.Bid
	var status string
	err := row.Scan(&b.ID, &b.TaskID, &b.TaskTitle, &b.BidderID, &b.BidderName,
		&b.AmountCents, &b.Message, &b.EstimatedTime, &status, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBidNotFound
		}
		return nil, fmt.Errorf("scan bid: %w", err)
	}
	b.Status = model.BidStatus(status)
	return &b, nil
}

func (r *PostgresRepository) queryBids(ctx context.Context, query string, args ...any) ([]model.Bid, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select bids: %w", err)
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return bids, nil
}

// GetBidByID возвращает ставку по идентификатору.
func (r *PostgresRepository) GetBidByID(ctx context.Context, id uuid.UUID) (*model.Bid, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id)
	return scanBid(row)
}

// GetBidsByTask возвращает ставки задания в порядке создания.
// Порядок стабилен и служит tie-break-ом при ранжировании.
func (r *PostgresRepository) GetBidsByTask(ctx context.Context, taskID uuid.UUID) ([]model.Bid, error) {
	return r.queryBids(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE task_id = $1 ORDER BY created_at, id`, taskID)
}

// GetBidsByBidder возвращает ставки пользователя, новые первыми.
func (r *PostgresRepository) GetBidsByBidder(ctx context.Context, bidderID uuid.UUID) ([]model.Bid, error) {
	return r.queryBids(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE bidder_id = $1 ORDER BY created_at DESC`, bidderID)
}

// AcceptBid принимает ставку: задание OPEN -> ASSIGNED (атомарный check-and-set,
// проигравший конкурентный вызов получает ErrTaskNotOpen), ставка -> ACCEPTED,
// остальные PENDING-ставки задания -> REJECTED. Разрешено только автору задания.
// Конкурентные accept разных ставок одного задания берут блокировки строк в
// разном порядке и могут попасть в deadlock; прерванная транзакция повторяется
// и штатно завершается ErrTaskNotOpen.
func (r *PostgresRepository) AcceptBid(ctx context.Context, bidID, actorID uuid.UUID) (*model.Bid, error) {
	var accepted *model.Bid
	err := r.withRetry(ctx, func() error {
		var err error
		accepted, err = r.acceptBid(ctx, bidID, actorID)
		return err
	})
	return accepted, err
}

func (r *PostgresRepository) acceptBid(ctx context.Context, bidID, actorID uuid.UUID) (*model.Bid, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var taskID, bidderID uuid.UUID
	var bidderName, bidStatus string
	err = tx.QueryRow(ctx,
		`SELECT task_id, bidder_id, bidder_name, status FROM bids WHERE id = $1 FOR UPDATE`, bidID,
	).Scan(&taskID, &bidderID, &bidderName, &bidStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBidNotFound
		}
		return nil, fmt.Errorf("select bid: %w", err)
	}

	var posterID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT poster_id FROM tasks WHERE id = $1`, taskID).Scan(&posterID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("select task: %w", err)
	}
	if posterID != actorID {
		return nil, ErrNotTaskPoster
	}
	if model.BidStatus(bidStatus) != model.BidStatusPending {
		return nil, ErrBidNotPending
	}

	// Check-and-set по статусу задания: ровно один конкурентный accept проходит.
	cmdTag, err := tx.Exec(ctx,
		`UPDATE tasks
		 SET status = $2, assignee_id = $3, assignee_name = $4, updated_at = now()
		 WHERE id = $1 AND status = $5`,
		taskID, string(model.TaskStatusAssigned), bidderID, bidderName,
		string(model.TaskStatusOpen),
	)
	if err != nil {
		return nil, fmt.Errorf("assign task: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return nil, ErrTaskNotOpen
	}

	row := tx.QueryRow(ctx,
		`UPDATE bids SET status = $2 WHERE id = $1 RETURNING `+bidColumns,
		bidID, string(model.BidStatusAccepted))
	accepted, err := scanBid(row)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE bids SET status = $3 WHERE task_id = $1 AND id <> $2 AND status = $4`,
		taskID, bidID, string(model.BidStatusRejected), string(model.BidStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("reject other bids: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return accepted, nil
}

// RejectBid переводит ставку в REJECTED. Разрешено только автору задания.
func (r *PostgresRepository) RejectBid(ctx context.Context, bidID, actorID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var taskID uuid.UUID
	var bidStatus string
	err = tx.QueryRow(ctx,
		`SELECT task_id, status FROM bids WHERE id = $1 FOR UPDATE`, bidID,
	).Scan(&taskID, &bidStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBidNotFound
		}
		return fmt.Errorf("select bid: %w", err)
	}

	var posterID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT poster_id FROM tasks WHERE id = $1`, taskID).Scan(&posterID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("select task: %w", err)
	}
	if posterID != actorID {
		return ErrNotTaskPoster
	}
	if model.BidStatus(bidStatus) != model.BidStatusPending {
		return ErrBidNotPending
	}

	_, err = tx.Exec(ctx,
		`UPDATE bids SET status = $2 WHERE id = $1`, bidID, string(model.BidStatusRejected))
	if err != nil {
		return fmt.Errorf("reject bid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// DeleteBid удаляет ставку и уменьшает счётчик ставок задания (не ниже нуля).
// Разрешено только автору ставки и только пока она не принята и не оплачена.
func (r *PostgresRepository) DeleteBid(ctx context.Context, bidID, actorID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var taskID, bidderID uuid.UUID
	var status string
	err = tx.QueryRow(ctx,
		`SELECT task_id, bidder_id, status FROM bids WHERE id = $1 FOR UPDATE`, bidID,
	).Scan(&taskID, &bidderID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBidNotFound
		}
		return fmt.Errorf("select bid: %w", err)
	}
	if bidderID != actorID {
		return ErrNotBidder
	}
	if s := model.BidStatus(status); s == model.BidStatusAccepted || s == model.BidStatusPaid {
		return ErrBidAccepted
	}

	if _, err := tx.Exec(ctx, `DELETE FROM bids WHERE id = $1`, bidID); err != nil {
		return fmt.Errorf("delete bid: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE tasks SET bid_count = GREATEST(bid_count - 1, 0), updated_at = now() WHERE id = $1`,
		taskID)
	if err != nil {
		return fmt.Errorf("decrement bid count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func ensureWallet(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO wallets (user_id, balance) VALUES ($1, 0) ON CONFLICT (user_id) DO NOTHING`,
		userID)
	if err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}
	return nil
}

// GetWallet возвращает кошелёк пользователя, создавая пустой при первом обращении.
func (r *PostgresRepository) GetWallet(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := ensureWallet(ctx, tx, userID); err != nil {
		return nil, err
	}

	var w model.Wallet
	w.UserID = userID
	err = tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&w.BalanceCents)
	if err != nil {
		return nil, fmt.Errorf("select wallet: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &w, nil
}

// CreditWallet зачисляет средства и добавляет CREDIT-запись в историю операций.
// Кошелёк блокируется построчно, чтобы конкурентные операции не теряли обновления.
func (r *PostgresRepository) CreditWallet(ctx context.Context, userID uuid.UUID, amountCents int64, reference string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := ensureWallet(ctx, tx, userID); err != nil {
		return 0, err
	}

	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("lock wallet: %w", err)
	}

	balance += amountCents
	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = $2 WHERE user_id = $1`, userID, balance); err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO wallet_transactions (user_id, type, amount, reference) VALUES ($1, $2, $3, $4)`,
		userID, string(model.TransactionCredit), amountCents, reference); err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return balance, nil
}

// GetTransactions возвращает историю операций по кошельку, новые первыми.
func (r *PostgresRepository) GetTransactions(ctx context.Context, userID uuid.UUID) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT type, amount, reference, created_at
		 FROM wallet_transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var txType string
		if err := rows.Scan(&txType, &t.AmountCents, &t.Reference, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = model.TransactionType(txType)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// SettleBid — единственный путь расчёта по ставке: списывает сумму ставки с
// кошелька плательщика, переводит ставку ACCEPTED -> PAID и задание в
// IN_PROGRESS одной транзакцией. Переход PAID служит шлюзом идемпотентности:
// повторный вызов по уже оплаченной ставке получает ErrBidNotPayable и не
// порождает второго списания.
func (r *PostgresRepository) SettleBid(ctx context.Context, bidID, payerID uuid.UUID, reference string) (int64, error) {
	var remaining int64
	err := r.withRetry(ctx, func() error {
		var err error
		remaining, err = r.settleBid(ctx, bidID, payerID, reference)
		return err
	})
	return remaining, err
}

func (r *PostgresRepository) settleBid(ctx context.Context, bidID, payerID uuid.UUID, reference string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var taskID, bidderID uuid.UUID
	var amount int64
	var status string
	err = tx.QueryRow(ctx,
		`SELECT task_id, bidder_id, amount, status FROM bids WHERE id = $1 FOR UPDATE`, bidID,
	).Scan(&taskID, &bidderID, &amount, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrBidNotFound
		}
		return 0, fmt.Errorf("select bid: %w", err)
	}
	if bidderID != payerID {
		return 0, ErrNotBidder
	}
	if model.BidStatus(status) != model.BidStatusAccepted {
		return 0, ErrBidNotPayable
	}

	if err := ensureWallet(ctx, tx, payerID); err != nil {
		return 0, err
	}

	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, payerID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("lock wallet: %w", err)
	}

	if amount > balance {
		return 0, ErrInsufficientBalance
	}

	balance -= amount
	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = $2 WHERE user_id = $1`, payerID, balance); err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO wallet_transactions (user_id, type, amount, reference) VALUES ($1, $2, $3, $4)`,
		payerID, string(model.TransactionDebit), amount, reference); err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE bids SET status = $2 WHERE id = $1`, bidID, string(model.BidStatusPaid)); err != nil {
		return 0, fmt.Errorf("mark bid paid: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE tasks SET status = $2, updated_at = now() WHERE id = $1`,
		taskID, string(model.TaskStatusInProgress)); err != nil {
		return 0, fmt.Errorf("mark task in progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return balance, nil
}

// CreateReview сохраняет отзыв и пересчитывает рейтинг оценённого пользователя
// в той же транзакции. Повторный отзыв по паре (задание, автор отзыва)
// отклоняется уникальным индексом.
func (r *PostgresRepository) CreateReview(ctx context.Context, rev *model.Review) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO reviews (id, task_id, reviewer_id, reviewer_name, reviewed_user_id, rating, comment)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rev.ID, rev.TaskID, rev.ReviewerID, rev.ReviewerName, rev.ReviewedUserID,
		rev.Rating, rev.Comment,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrReviewExists
		}
		return fmt.Errorf("insert review: %w", err)
	}

	if err := recalcRating(ctx, tx, rev.ReviewedUserID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// DeleteReview удаляет отзыв и пересчитывает рейтинг оценённого пользователя.
// Разрешено только автору отзыва.
func (r *PostgresRepository) DeleteReview(ctx context.Context, reviewID, actorID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var reviewerID, reviewedUserID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT reviewer_id, reviewed_user_id FROM reviews WHERE id = $1 FOR UPDATE`, reviewID,
	).Scan(&reviewerID, &reviewedUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrReviewNotFound
		}
		return fmt.Errorf("select review: %w", err)
	}
	if reviewerID != actorID {
		return ErrNotReviewer
	}

	if _, err := tx.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, reviewID); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}

	if err := recalcRating(ctx, tx, reviewedUserID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func recalcRating(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE users
		 SET rating = COALESCE((SELECT ROUND(AVG(rating)::numeric, 1) FROM reviews WHERE reviewed_user_id = $1), 0),
		     total_reviews = (SELECT COUNT(*) FROM reviews WHERE reviewed_user_id = $1)
		 WHERE id = $1`,
		userID)
	if err != nil {
		return fmt.Errorf("recalculate rating: %w", err)
	}
	return nil
}

const reviewColumns = `id, task_id, reviewer_id, reviewer_name, reviewed_user_id, rating, comment, created_at`

func (r *PostgresRepository) queryReviews(ctx context.Context, query string, args ...any) ([]model.Review, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select reviews: %w", err)
	}
	defer rows.Close()

	var res []model.Review
	for rows.Next() {
		var rev model.Review
		if err := rows.Scan(&rev.ID, &rev.TaskID, &rev.ReviewerID, &rev.ReviewerName,
			&rev.ReviewedUserID, &rev.Rating, &rev.Comment, &rev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		res = append(res, rev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetReviewsByUser возвращает отзывы, полученные пользователем, новые первыми.
func (r *PostgresRepository) GetReviewsByUser(ctx context.Context, userID uuid.UUID) ([]model.Review, error) {
	return r.queryReviews(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE reviewed_user_id = $1 ORDER BY created_at DESC`,
		userID)
}

// GetReviewsByTask возвращает отзывы по заданию.
func (r *PostgresRepository) GetReviewsByTask(ctx context.Context, taskID uuid.UUID) ([]model.Review, error) {
	return r.queryReviews(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE task_id = $1 ORDER BY created_at DESC`,
		taskID)
}
