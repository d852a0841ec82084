package main

import (
	"fmt"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/state/auth"
	"github.com/PlebeianApp/market-sub002/state/denylist"
	"github.com/PlebeianApp/market-sub002/state/payments"
	"github.com/PlebeianApp/market-sub002/state/registry"
)

// cliListener is a cheap and nasty way to speed up development cycles. It listens for keypresses and executes commands.
func cliListener(interrupt chan struct{}) {
	fmt.Println("VIEW CURRENT STATE:\nn: name registry\na: authorization lists\nd: denylist\np: pending invoices\nt: pricing tiers\nw: current wallet\nc: config\nq: to quit\nSee cliListener.go for more")
	for {
		r, k, err := keyboard.GetSingleKey()
		if err != nil {
			panic(err)
		}
		str := string(r)
		switch str {
		default:
			if k == 13 {
				fmt.Println("\n-----------------------------------")
				break
			}
			if r == 0 {
				break
			}
			fmt.Println("Key " + str + " is not bound to any test procedures. See main.cliListener for more details.")
		case "n":
			for name, record := range registry.GetMapped() {
				fmt.Printf("\nName: %s\nOwner: %s\nValid until: %s\n", name, record.Owner, time.Unix(record.ValidUntil, 0).String())
			}
		case "a":
			m := auth.GetMapped()
			fmt.Printf("\nConfigured: %v\nOwner: %s\nAdmins: %v\nEditors: %v\n", m.Configured, m.Owner, m.Admins, m.Editors)
		case "d":
			fmt.Printf("\nDenylisted: %v\n", denylist.GetMapped())
		case "p":
			fmt.Printf("\nPending invoices: %d\n", payments.PendingCount())
		case "t":
			for _, tier := range registry.Tiers() {
				fmt.Printf("\nTier: %s Price: %d sats Duration: %ds\n", tier.Label, tier.AmountSats, tier.DurationSeconds)
			}
		case "w":
			fmt.Printf("Current Wallet: \n%s\n", actors.MyWallet().Account)
		case "c":
			fmt.Println("CURRENT CONFIG")
			for k, v := range actors.MakeOrGetConfig().AllSettings() {
				fmt.Printf("\nKey: %s; Value: %v\n", k, v)
			}
		case "q":
			close(interrupt)
		}
	}
}
