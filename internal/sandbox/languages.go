package sandbox

import "code-exam-service/internal/domain"

// LanguageConfig maps a learner-facing language to the sandbox runtime.
type LanguageConfig struct {
	Runtime  string
	Version  string
	FileName string
	Compiled bool
}

var languageConfigs = map[string]LanguageConfig{
	"javascript": {Runtime: "javascript", Version: "*", FileName: "main.js"},
	"typescript": {Runtime: "typescript", Version: "*", FileName: "main.ts", Compiled: true},
	"python":     {Runtime: "python", Version: "*", FileName: "main.py"},
}

// ConfigFor resolves the runtime config for a supported language.
func ConfigFor(language string) (LanguageConfig, error) {
	cfg, ok := languageConfigs[language]
	if !ok {
		return LanguageConfig{}, domain.Validationf("language", "unsupported language: "+language)
	}
	return cfg, nil
}

// SupportedLanguage reports whether the gateway can run the language.
func SupportedLanguage(language string) bool {
	_, ok := languageConfigs[language]
	return ok
}
