package main

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/engine/library"
	"github.com/PlebeianApp/market-sub002/messaging/eventconductor"
	"github.com/PlebeianApp/market-sub002/state/payments"
	"github.com/PlebeianApp/market-sub002/web"
)

func main() {
	// Various aspects of this application require global and local settings.
	// To keep things clean and tidy we put these settings in a Viper
	// configuration.
	conf := viper.New()
	actors.InitConfig(conf)
	actors.SetConfig(conf)
	actors.ValidateConfig(conf)
	fmt.Println("CURRENT CONFIG")
	for k, v := range actors.MakeOrGetConfig().AllSettings() {
		fmt.Printf("\nKey: %s; Value: %v\n", k, v)
	}

	terminateChan := make(chan struct{})
	actors.SetTerminateChan(terminateChan)

	library.LogCLI(fmt.Sprintf("authority identity: %s", actors.MyWallet().Account), 4)

	eventconductor.Start()
	payments.StartPoller()
	web.Start()

	interrupt := make(chan struct{})
	go cliListener(interrupt)
	<-interrupt
	actors.Shutdown()
	actors.GetWaitGroup().Wait()
	library.LogCLI("all listeners closed, goodbye", 4)
}
