package properties

import (
	"os"
	"strings"
)

func RootPath() string {
	return os.Getenv("ROOT_PATH")
}

// DataPath joins elements under ROOT_PATH/data.
func DataPath(elem ...string) string {
	parts := append([]string{RootPath(), "data"}, elem...)
	return strings.TrimPrefix(strings.Join(parts, "/"), "/")
}

func ConfigPath() string {
	return os.Getenv("LST_CONFIG")
}

func LogLevel() string {
	return os.Getenv("LOG_LEVEL")
}

func EarthEngineProject() string {
	if project := os.Getenv("EE_PROJECT"); project != "" {
		return project
	}
	return "earthengine-public"
}

func EarthEngineAPIURL() string {
	if url := os.Getenv("EE_API_URL"); url != "" {
		return url
	}
	return "https://earthengine.googleapis.com/v1"
}

func EarthEngineTokenURL() string {
	if url := os.Getenv("EE_TOKEN_URL"); url != "" {
		return url
	}
	return "https://oauth2.googleapis.com/token"
}

func EarthEngineServiceAccountFile() string {
	return os.Getenv("EE_SERVICE_ACCOUNT_FILE")
}

func EarthEngineClientID() string {
	return os.Getenv("EE_CLIENT_ID")
}

func EarthEngineClientSecret() string {
	return os.Getenv("EE_CLIENT_SECRET")
}

func DiscordErrorNotificationUrl() string {
	return os.Getenv("DISCORD_ERROR_NOTIFICATION_URL")
}
func DiscordSuccessNotificationUrl() string {
	return os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL")
}
