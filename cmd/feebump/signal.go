// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
)

// interruptSignals defines the default signals to catch in order to do a proper
// shutdown.  This may be modified during init depending on the platform.
var interruptSignals = []os.Signal{os.Interrupt}

// withInterrupt returns a context that is cancelled when one of the interrupt
// signals is received.  Cancelling the context abandons the RPC in flight and
// the run reports the state it was in.
func withInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		interruptChannel := make(chan os.Signal, 1)
		signal.Notify(interruptChannel, interruptSignals...)
		defer signal.Stop(interruptChannel)

		select {
		case sig := <-interruptChannel:
			fbmpLog.Infof("Received signal (%s).  Shutting down...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
