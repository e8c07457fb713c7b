package config

import "time"

// Application constants - hardcoded values for the FoodPulse pipeline
const (
	// Application Info
	AppName    = "FoodPulse"
	AppVersion = "1.0.0"

	// EnvPrefix namespaces every environment variable (FOODPULSE_*)
	EnvPrefix = "FOODPULSE"

	// File Paths (relative to the base directory)
	DefaultDataDir   = "data"
	DefaultOutputDir = "output"
	DefaultLogsDir   = "logs"

	// Source and artifact file names
	OrdersFileName      = "orders.csv"
	UsersFileName       = "users.json"
	RestaurantsFileName = "restaurants.sql"
	AnalyticsFileName   = "final_food_delivery_dataset.csv"
	ReportFileName      = "food_delivery_report.xlsx"

	// RestaurantsTable is the table the SQL script must create
	RestaurantsTable = "restaurants"

	// OrderDateLayout parses order dates written as day-month-year
	OrderDateLayout = "02-01-2006"

	// Analytics defaults
	DefaultForecastPeriods  = 30
	DefaultForecastInterval = 0.8
	DefaultSegmentCount     = 4
	DefaultForestTrees      = 100
	DefaultBackgroundSize   = 100
	DefaultRandomSeed       = 42

	// Operation Timeouts
	DefaultPipelineTimeout = 10 * time.Minute
	DefaultStageTimeout    = 5 * time.Minute
)
