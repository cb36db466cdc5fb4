// Package mainloop provides a goroutine-backed main thread for xevent.
//
// A Loop executes enqueued work in FIFO order on the goroutine that calls Run. Work receives
// a context marked as belonging to the loop, so posts made with it count as main thread posts:
// MAIN handlers run inline and BACKGROUND handlers are queued.
//
// Example:
//
//	bus, loop := mainloop.Use(mainloop.Config{Name: "ui"},
//	    mainloop.WithLogger(logger),
//	)
//	go producer(bus)
//	_ = loop.Run(ctx) // blocks: this goroutine is now the main thread
package mainloop
