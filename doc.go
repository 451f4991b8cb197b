// Package compositor provides a real-time chroma-key compositing session
// for avatar video rendered against a near-white backdrop.
//
// Every frame of the source is classified pixel by pixel as background or
// subject, the background is made transparent, the silhouette edge is
// softened, and the result is presented to a display surface at the
// display's refresh rate while the achieved frame rate is tracked.
//
// # Quick Start
//
//	store := config.NewDefaultStore()
//	hub := display.NewHub()
//	hub.Start(ctx)
//	defer hub.Stop()
//
//	pacer := compositor.NewRefreshPacer(60)
//	defer pacer.Stop()
//
//	session, err := compositor.NewSession(compositor.SessionConfig{
//	    Name:    "avatar",
//	    Surface: hub,
//	    Pacer:   pacer,
//	    Options: store,
//	    OnStatus: func(st compositor.Status) {
//	        log.Printf("processing=%v fps=%.0f error=%q",
//	            st.IsProcessing, st.FrameRate, st.ErrorMessage())
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	src, _ := gstsource.New(gstsource.Config{URI: "rtsp://avatar.local/stream"})
//	src.Start(ctx)
//	defer src.Stop()
//
//	if err := session.Attach(ctx, src); err != nil {
//	    log.Fatal(err) // setup fault, session stays idle
//	}
//
// # Lifecycle
//
//	idle ──Attach──▶ processing ──fault──▶ error
//	  ▲                  │  ▲                │
//	  └──Detach/Close────┘  └──good frame────┘
//
// Errors are not sticky: the first cycle that completes after a fault clears
// Status.Error and returns to processing.
//
// # Frame Cycle
//
// One cycle runs per refresh signal, never overlapping:
//
//  1. Wait on the Pacer (the only suspension point)
//  2. Skip if the surface is not ready or the source reports zero size
//  3. Resize capture and output buffers when the size changed
//  4. ReadFrame into the capture buffer (ErrFrameNotReady skips)
//  5. Key the frame with the current options snapshot
//  6. Record the frame on the performance monitor
//  7. Present the output buffer
//
// Options are read once per cycle through OptionsSource.Snapshot, so a cycle
// never sees a half-applied update.
//
// # Ownership
//
// The session owns its two buffers and releases them when the source is
// detached. It never closes a VideoSource: that belongs to whoever created
// it. Surfaces must copy frame.Pix if they keep it.
package compositor
