package router

import (
	"school_resources_backend/internal/handlers"
	"school_resources_backend/internal/middleware"
	"school_resources_backend/internal/models"

	"github.com/gin-gonic/gin"
)

// SetupInventoryRoutes sets up the inventory routes.
// Role checks for writes live in the service; the movement history is staff only.
func SetupInventoryRoutes(authenticatedGroup *gin.RouterGroup, inventoryHandler *handlers.InventoryHandler) {
	inventoryRoutes := authenticatedGroup.Group("/inventory")
	{
		inventoryRoutes.POST("", inventoryHandler.CreateItem)
		inventoryRoutes.GET("", inventoryHandler.GetItems)
		inventoryRoutes.GET("/low-stock", inventoryHandler.GetLowStockItems)
		inventoryRoutes.GET("/:id", inventoryHandler.GetItemByID)
		inventoryRoutes.PUT("/:id", inventoryHandler.UpdateItem)
		inventoryRoutes.POST("/:id/adjust", inventoryHandler.AdjustStock)
		inventoryRoutes.POST("/:id/restock", inventoryHandler.RestockItem)
		inventoryRoutes.POST("/:id/retire", inventoryHandler.RetireItem)
		inventoryRoutes.GET("/:id/movements",
			middleware.RoleAuthMiddleware(models.RoleStorekeeper, models.RoleAdmin),
			inventoryHandler.GetMovements)
	}
}

// SetupRequestRoutes sets up the resource request routes.
func SetupRequestRoutes(authenticatedGroup *gin.RouterGroup, requestHandler *handlers.RequestHandler) {
	requestRoutes := authenticatedGroup.Group("/requests")
	{
		requestRoutes.POST("", requestHandler.CreateRequest)
		requestRoutes.GET("", requestHandler.GetRequests)
		requestRoutes.GET("/:id", requestHandler.GetRequestByID)
		requestRoutes.POST("/:id/transition", requestHandler.TransitionRequest)
		requestRoutes.POST("/:id/cancel", requestHandler.CancelRequest)
	}
}

// SetupLibraryRoutes sets up the book and borrow routes.
func SetupLibraryRoutes(authenticatedGroup *gin.RouterGroup, libraryHandler *handlers.LibraryHandler) {
	libraryRoutes := authenticatedGroup.Group("/library")
	{
		libraryRoutes.POST("/books", libraryHandler.AddBook)
		libraryRoutes.GET("/books", libraryHandler.GetBooks)
		libraryRoutes.GET("/books/:id", libraryHandler.GetBookByID)

		libraryRoutes.POST("/borrows", libraryHandler.BorrowBook)
		libraryRoutes.GET("/borrows", libraryHandler.GetBorrowRecords)
		libraryRoutes.GET("/borrows/active", libraryHandler.GetActiveBorrows)
		libraryRoutes.GET("/borrows/overdue", libraryHandler.GetOverdueBorrows)
		libraryRoutes.POST("/borrows/:id/return", libraryHandler.ReturnBook)
		libraryRoutes.POST("/borrows/:id/lost", libraryHandler.MarkLost)
	}
}

// SetupLabRoutes sets up the lab registry and booking routes.
func SetupLabRoutes(authenticatedGroup *gin.RouterGroup, labHandler *handlers.LabHandler) {
	labRoutes := authenticatedGroup.Group("/labs")
	{
		labRoutes.POST("", labHandler.CreateLab)
		labRoutes.GET("", labHandler.GetLabs)
		labRoutes.GET("/available", labHandler.GetAvailableLabs)

		labRoutes.POST("/bookings", labHandler.ReserveLab)
		labRoutes.GET("/bookings", labHandler.GetBookings)
		labRoutes.GET("/bookings/recent", labHandler.GetRecentBookings)
		labRoutes.GET("/bookings/:id", labHandler.GetBookingByID)
		labRoutes.POST("/bookings/:id/decision", labHandler.DecideBooking)
		labRoutes.POST("/bookings/:id/cancel", labHandler.CancelBooking)
		labRoutes.PATCH("/bookings/:id/notes", labHandler.AnnotateBooking)
	}
}
