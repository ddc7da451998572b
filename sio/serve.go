/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sio

import (
	"context"

	"github.com/Comcast/jess/core"
	"github.com/Comcast/jess/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Serve starts the couplings, makes a Session for the engine,
// restores facts from the couplings and the storage (which can be
// nil), and then processes operations until ctx is done or (with
// conf.HaltOnInputEOF) the input is exhausted.  The couplings are
// stopped before Serve returns.
func Serve(ctx context.Context, conf *SessionConf, e *core.Engine, st storage.Storage, c Couplings) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.Start(ctx); err != nil {
		return err
	}

	err := serve(ctx, cancel, conf, e, st, c)

	cancel()
	if serr := c.Stop(context.Background()); serr != nil {
		if err == nil {
			err = serr
		} else {
			e.Logger().Warn("Stop", zap.Error(serr))
		}
	}
	return err
}

func serve(ctx context.Context, cancel context.CancelFunc, conf *SessionConf, e *core.Engine, st storage.Storage, c Couplings) error {
	s, err := NewSession(ctx, conf, e, c)
	if err != nil {
		return err
	}
	s.Storage = st

	fss, err := c.Read(ctx)
	if err != nil {
		return err
	}
	r, err := s.Restore(ctx, fss)
	if err != nil {
		return err
	}
	s.Deliver(ctx, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.Loop(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.Halt()
		return nil
	})
	return g.Wait()
}
