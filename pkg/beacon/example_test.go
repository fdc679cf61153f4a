package beacon_test

import (
	"context"
	"fmt"
	"log"

	"github.com/crimson-sun/beacon/pkg/beacon"
)

func Example() {
	b, err := beacon.New()
	if err != nil {
		log.Fatal(err)
	}
	defer b.Close()

	outcomes, err := b.Process(context.Background(), []beacon.Event{{
		ProjectID: "proj1",
		Type:      "error",
		Error:     &beacon.ErrorDetails{Kind: "NullReferenceException", Message: "boom"},
	}})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(outcomes[0].Status, outcomes[0].IsNew)
	// Output: processed true
}
