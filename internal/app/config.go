package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/practicos/internal/ocr"
)

var ErrInvalidConfig = errors.New("app: invalid config")

const (
	EngineExec    = "exec"
	EngineLibrary = "library"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	// OCR
	TesseractPath string
	OCRLanguage   string
	OCRDPI        int
	OCREngine     string
	OCRWorkers    int
	PdftoppmPath  string

	// AI
	UseAIExtraction bool
	AIProvider      string
	OpenAIAPIKey    string
	OpenAIModel     string
	GeminiAPIKey    string
	GeminiModel     string
	AITimeout       time.Duration
	AIRateLimit     float64

	DataRoot       string
	CustomInputDir string
	CustomOutput   string
	CustomTempDir  string
	DatabaseUrl    string
	ProfilePath    string
	LogLevel       string
	LogFile        string
	ServerAddr     string

	// Calculated
	InputPath  string
	OutputPath string
	TempPath   string
}

// Load reads .env (without overriding the environment) and builds a Config
// from environment variables. Paths are resolved by Resolve.
func Load() *Config {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	config := &Config{
		TesseractPath: ParseString("TESSERACT_PATH", "tesseract"),
		OCRLanguage:   ParseString("OCR_LANGUAGE", "spa"),
		OCRDPI:        ParseInt("OCR_DPI", 300),
		OCREngine:     strings.ToLower(ParseString("OCR_ENGINE", EngineExec)),
		OCRWorkers:    ParseInt("OCR_WORKERS", 4),
		PdftoppmPath:  ParseString("PDFTOPPM_PATH", "pdftoppm"),

		UseAIExtraction: ParseBool("USE_AI_EXTRACTION", true),
		AIProvider:      strings.ToLower(ParseString("AI_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:    ParseString("OPENAI_API_KEY", ""),
		OpenAIModel:     ParseString("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:    ParseString("GEMINI_API_KEY", ""),
		GeminiModel:     ParseString("GEMINI_MODEL", "gemini-1.5-flash"),
		AITimeout:       ParseDuration("AI_TIMEOUT", 60*time.Second),
		AIRateLimit:     ParseFloat("AI_RATE_LIMIT", 1),

		DataRoot:       ParseString("DATA_ROOT", "."),
		CustomInputDir: ParseString("CUSTOM_INPUT_DIR", ""),
		CustomOutput:   ParseString("CUSTOM_OUTPUT_DIR", ""),
		CustomTempDir:  ParseString("TEMP_DIR", ""),
		DatabaseUrl:    ParseString("DATABASE_URL", ""),
		ProfilePath:    ParseString("PROFILE_PATH", ""),
		LogLevel:       ParseString("LOG_LEVEL", "info"),
		LogFile:        ParseString("LOG_FILE", "practicos.log"),
		ServerAddr:     ParseString("SERVER_ADDR", ":8080"),
	}
	config.Resolve()
	return config
}

// Resolve computes the input, output and temp paths. It is called again
// after command-line flags have been applied.
func (c *Config) Resolve() {
	c.InputPath = c.CustomInputDir
	if c.InputPath == "" {
		c.InputPath = filepath.Join(c.DataRoot, "data", "input")
	}
	c.OutputPath = c.CustomOutput
	if c.OutputPath == "" {
		c.OutputPath = filepath.Join(c.DataRoot, "data", "output")
	}
	c.TempPath = c.CustomTempDir
	if c.TempPath == "" {
		c.TempPath = filepath.Join(c.DataRoot, "temp")
	}
}

// AIKey returns the credential of the selected provider.
func (c *Config) AIKey() string {
	if c.AIProvider == ProviderGemini {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}

// AIEnabled reports whether AI extraction is both requested and possible.
func (c *Config) AIEnabled() bool {
	return c.UseAIExtraction && c.AIKey() != ""
}

func (c *Config) Validate() error {
	var errs []error
	if c.OCRDPI < 72 || c.OCRDPI > 1200 {
		errs = append(errs, fmt.Errorf("OCR_DPI must be between 72 and 1200, got %d", c.OCRDPI))
	}
	if c.OCRWorkers < 1 {
		errs = append(errs, fmt.Errorf("OCR_WORKERS must be at least 1, got %d", c.OCRWorkers))
	}
	if strings.TrimSpace(c.OCRLanguage) == "" {
		errs = append(errs, errors.New("OCR_LANGUAGE is required"))
	}
	switch c.OCREngine {
	case EngineExec:
	case EngineLibrary:
		if ocr.LibraryEngine() == nil {
			errs = append(errs, fmt.Errorf("OCR_ENGINE=%q requires a binary built with -tags tesseract", EngineLibrary))
		}
	default:
		errs = append(errs, fmt.Errorf("OCR_ENGINE must be %q or %q, got %q", EngineExec, EngineLibrary, c.OCREngine))
	}
	switch c.AIProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("AI_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.AIProvider))
	}
	if c.AIRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("AI_RATE_LIMIT must be positive, got %v", c.AIRateLimit))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
