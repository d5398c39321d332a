// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "TruthScan")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/truthscan.log")
	viper.SetDefault("main.log.level", "info")
	viper.SetDefault("main.log.json", false)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.publicurl", "")
	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.log.enabled", true)
	viper.SetDefault("webserver.log.path", "logs/web.log")
	viper.SetDefault("webserver.log.level", "info")
	viper.SetDefault("webserver.cache.enabled", true)
	viper.SetDefault("webserver.cache.pagettl", 300)
	viper.SetDefault("webserver.cache.negativettl", 60)

	viper.SetDefault("security.host", "")
	viper.SetDefault("security.autotls", false)
	viper.SetDefault("security.redirecttohttps", false)

	viper.SetDefault("twitter.enabled", false)
	viper.SetDefault("twitter.bothandle", "truthscan")
	viper.SetDefault("twitter.apiurl", "https://api.twitter.com")
	viper.SetDefault("twitter.consumersecret", "")
	viper.SetDefault("twitter.bearertoken", "")
	viper.SetDefault("twitter.reply.enabled", true)
	viper.SetDefault("twitter.reply.maxattempts", 3)

	viper.SetDefault("oracle.endpoint", "https://api.undetectable.ai")
	viper.SetDefault("oracle.apikey", "")
	viper.SetDefault("oracle.timeout", 15)
	viper.SetDefault("oracle.maxretries", 3)
	viper.SetDefault("oracle.backoffms", 500)
	viper.SetDefault("oracle.totalbudget", 45)

	viper.SetDefault("directapi.enabled", false)
	viper.SetDefault("directapi.keys", []string{})
	viper.SetDefault("directapi.ratelimit", 30)
	viper.SetDefault("directapi.rateburst", 10)
	viper.SetDefault("directapi.maxuploadmb", 10)
	viper.SetDefault("directapi.allowedtypes", []string{
		"image/jpeg", "image/png", "image/webp", "image/gif",
	})

	viper.SetDefault("pageid.length", 6)
	viper.SetDefault("pageid.maxattempts", 10)

	viper.SetDefault("imagefetch.maxsizemb", 15)
	viper.SetDefault("imagefetch.timeout", 20)
	viper.SetDefault("imagefetch.requestspersecond", 5.0)
	viper.SetDefault("imagefetch.useragent", "truthscan/1.0 (+https://truthscan.com)")

	viper.SetDefault("worker.enabled", true)
	viper.SetDefault("worker.interval", 60)
	viper.SetDefault("worker.batchsize", 10)
	viper.SetDefault("worker.oraclemaxattempts", 5)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "truthscan.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "truthscan")
	viper.SetDefault("output.mysql.password", "truthscan")
	viper.SetDefault("output.mysql.database", "truthscan")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "truthscan/detections")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("notify.enabled", false)
	viper.SetDefault("notify.urls", []string{})
	viper.SetDefault("notify.mininterval", 30)
	viper.SetDefault("notify.oracleoutageat", 5)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")
}
