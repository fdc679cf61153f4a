// Package beacon provides an embeddable event ingestion core: it groups
// error and log events into stacks, stitches user sessions together,
// detects regressions of fixed stacks and indexes custom event data.
//
// Quick start:
//
//	b, err := beacon.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	outcomes, _ := b.Process(ctx, []beacon.Event{{
//	    ProjectID: "proj1",
//	    Type:      "error",
//	    Error:     &beacon.ErrorDetails{Kind: "NullReferenceException"},
//	}})
//	fmt.Println(outcomes[0].Status, outcomes[0].StackID)
//
// The Beacon instance is safe for concurrent use. Create once, reuse across
// requests.
package beacon
