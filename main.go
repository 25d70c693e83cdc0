package main

import (
	"lms/config"
	"lms/database"
	cronRoutes "lms/routers/cronRoutes"
	enrollmentRoutes "lms/routers/enrollmentRoutes"
	progressRoutes "lms/routers/progressRoutes"
	webhookRoutes "lms/routers/webhookRoutes"
	"lms/utils"

	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func main() {
	config.LoadConfig()
	database.ConnectDb()

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE",        // Allowed HTTP methods
		AllowHeaders: "Content-Type,Authorization,X-Cron-Secret,X-123FormBuilder-Signature", // Allowed headers
	}))

	// Enable the built-in logger middleware to log all requests
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
	}))

	enrollmentRoutes.SetupEnrollmentRoutes(app)
	progressRoutes.SetupProgressRoutes(app)
	webhookRoutes.SetupWebhookRoutes(app)
	cronRoutes.SetupCronRoutes(app)

	// In-process sweepers for payment expiry and webhook retry
	scheduler := utils.InitializePaymentSchedulers()

	// Stop the sweepers and drain in-flight requests on SIGINT/SIGTERM
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdown
		log.Println("Shutting down...")
		scheduler.Stop()
		if err := app.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Server is running on port %s", config.AppConfig.Port)
	if err := app.Listen(":" + config.AppConfig.Port); err != nil {
		scheduler.Stop()
		log.Fatal(err)
	}
}
