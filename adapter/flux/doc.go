// Package flux provides an asynchronous xsplit.SubscriberTarget.
//
// A Channel subscribes to every split publisher handed to it, keeps a bounded
// number of messages requested (Prefetch) and feeds them to a handler in
// sequence order. A handler error cancels that split.
//
//	ch, _ := flux.New(ctx, flux.Defaults(), func(ctx context.Context, m *xsplit.Message) error {
//	    return process(m)
//	})
//	s, _ := xsplit.NewSplitterBuilder().WithOutput(ch).Build()
//	_ = s.Split(ctx, msg)  // returns at once
//	_ = ch.Wait(ctx)       // blocks until the split terminates
package flux
