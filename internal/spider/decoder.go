package spider

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"gallery-spider/internal/client"
)

// runDecoder consumes the decode request stack. The stack is LIFO so
// the page the user asked for last decodes first.
func (s *Spider) runDecoder() {
	s.logger.Debug("spider decoder start")

	for s.ctx.Err() == nil {
		s.decodeMu.Lock()
		for len(s.decodeStack) == 0 && s.ctx.Err() == nil {
			s.decodeCond.Wait()
		}
		if s.ctx.Err() != nil {
			s.decodeMu.Unlock()
			break
		}
		index := s.decodeStack[len(s.decodeStack)-1]
		s.decodeStack = s.decodeStack[:len(s.decodeStack)-1]
		s.decodeMu.Unlock()

		s.decodeOne(index)
	}

	s.logger.Debug("spider decoder end")
}

func (s *Spider) decodeOne(index int) {
	s.stateMu.Lock()
	size := len(s.pageStates)
	s.stateMu.Unlock()
	if index < 0 || index >= size {
		s.notifyGetImageFailure(index, client.ErrorText(client.ErrOutOfRange))
		return
	}

	pipe := s.getDen().OpenInputPipe(index)
	if pipe == nil {
		s.notifyGetImageFailure(index, client.ErrorText(client.ErrNotFound))
		return
	}
	pipe.Obtain()
	defer pipe.Release()
	defer pipe.Close()

	r, err := pipe.Open()
	if err != nil {
		s.notifyGetImageFailure(index, client.ErrorText(client.ErrReadingFailed))
		return
	}

	img, _, err := image.Decode(r)
	if err != nil {
		s.notifyGetImageFailure(index, client.ErrorText(client.ErrDecodeFailed))
		return
	}
	s.notifyGetImageSuccess(index, img)
}
