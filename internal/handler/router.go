package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/AYUSH1442006/nexi-backend/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса nexi.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})

	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/open", h.GetOpenTasks)
		r.Get("/category/{category}", h.GetTasksByCategory)
		r.Get("/search", h.SearchTasks)
		r.Get("/{taskID}", h.GetTask)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/", h.CreateTask)
			r.Get("/my", h.GetMyTasks)
			r.Get("/assigned", h.GetAssignedTasks)
			r.Put("/{taskID}", h.UpdateTask)
			r.Delete("/{taskID}", h.DeleteTask)
			r.Post("/{taskID}/start", h.StartTask)
			r.Post("/{taskID}/complete", h.CompleteTask)
		})
	})

	r.Route("/api/bids", func(r chi.Router) {
		r.Get("/task/{taskID}", h.GetBidsForTask)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/", h.PlaceBid)
			r.Get("/my", h.GetMyBids)
			r.Post("/{bidID}/accept", h.AcceptBid)
			r.Post("/{bidID}/reject", h.RejectBid)
			r.Post("/{bidID}/pay-from-wallet", h.PayFromWallet)
			r.Delete("/{bidID}", h.DeleteBid)
		})
	})

	r.Route("/api/ai", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Get("/rank-bids/{taskID}", h.RankBids)
	})

	r.Route("/api/wallet", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Get("/", h.GetWallet)
		r.Post("/add-money", h.AddMoney)
		r.Get("/transactions", h.GetTransactions)
	})

	r.Route("/api/payment", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Post("/create-order", h.CreatePaymentOrder)
		r.Post("/verify", h.VerifyPayment)
	})

	r.Route("/api/reviews", func(r chi.Router) {
		r.Get("/user/{userID}", h.GetReviewsForUser)
		r.Get("/task/{taskID}", h.GetReviewsForTask)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/", h.SubmitReview)
			r.Delete("/{reviewID}", h.DeleteReview)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
