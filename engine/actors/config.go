package actors

import (
	"os"

	"github.com/spf13/viper"
	"github.com/PlebeianApp/market-sub002/engine/library"
)

// Event kinds used by this service. Snapshots are parameterized replaceable
// events (NIP-33) so consumers fetch the latest by kind+author+d-tag instead
// of scanning history.
const KindSnapshot int = 30078
const KindZapReceipt int = 9735
const KindDeletionRequest int = 5

// Snapshot namespaces (d-tags). One canonical latest event exists per
// namespace per author.
const NamespaceSetup string = "market:setup"
const NamespaceAdmins string = "market:admins"
const NamespaceEditors string = "market:editors"
const NamespaceDenylist string = "market:denylist"
const NamespaceNames string = "market:names"

func Namespaces() []string {
	return []string{NamespaceSetup, NamespaceAdmins, NamespaceEditors, NamespaceDenylist, NamespaceNames}
}

// InitConfig sets up our Viper config object
func InitConfig(config *viper.Viper) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		library.LogCLI(err.Error(), 0)
	}
	config.SetDefault("rootDir", homeDir+"/marketauthority/")
	config.SetConfigType("yaml")
	config.SetConfigFile(config.GetString("rootDir") + "config.yaml")
	err = config.ReadInConfig()
	if err != nil {
		library.LogCLI(err.Error(), 4)
	}
	config.SetDefault("firstRun", true)
	config.SetDefault("logLevel", 4)
	config.SetDefault("production", false)
	config.SetDefault("doNotPublish", false)
	config.SetDefault("relaysMust", []string{"wss://nostr.688.org"})
	config.SetDefault("websocketAddr", "0.0.0.0:8420")

	// LNbits-style wallet; when absent outside production we fall back to a
	// plain lightning address (invoice creation only, no settlement polling).
	config.SetDefault("walletEndpoint", "")
	config.SetDefault("walletKey", "")
	config.SetDefault("lightningAddress", "")
	config.SetDefault("walletPollSeconds", 30)
	config.SetDefault("invoiceMaxAgeSeconds", 3600)

	config.SetDefault("tierYearSats", int64(21000))
	config.SetDefault("tierYearSeconds", int64(31536000))
	config.SetDefault("tierQuarterSats", int64(6000))
	config.SetDefault("tierQuarterSeconds", int64(7776000))
	config.SetDefault("tierDevSats", int64(21))
	config.SetDefault("tierDevSeconds", int64(3600))

	// Create our working directory and config file if not exist
	initRootDir(config)
	library.Touch(config.GetString("rootDir") + "config.yaml")
	err = config.WriteConfig()
	if err != nil {
		library.LogCLI(err.Error(), 0)
	}
}

func initRootDir(conf *viper.Viper) {
	_, err := os.Stat(conf.GetString("rootDir"))
	if os.IsNotExist(err) {
		err = os.Mkdir(conf.GetString("rootDir"), 0755)
		if err != nil {
			library.LogCLI(err, 0)
		}
	}
}

// ValidateConfig terminates the process on misconfiguration that we must not
// discover mid-flight.
func ValidateConfig(conf *viper.Viper) {
	if len(conf.GetStringSlice("relaysMust")) == 0 {
		library.LogCLI("no relays configured, set relaysMust in config.yaml", 0)
	}
	if len(conf.GetString("walletEndpoint")) > 0 && len(conf.GetString("walletKey")) == 0 {
		library.LogCLI("walletEndpoint is set but walletKey is missing", 0)
	}
	if conf.GetBool("production") {
		if len(conf.GetString("walletEndpoint")) == 0 && len(conf.GetString("lightningAddress")) == 0 {
			library.LogCLI("production requires walletEndpoint or lightningAddress", 0)
		}
	}
}

var conf *viper.Viper

func MakeOrGetConfig() *viper.Viper {
	return conf
}

func SetConfig(config *viper.Viper) {
	conf = config
}
