package imu

import (
	"errors"

	"tinycore-go/bus"
	"tinycore-go/drivers/lsm6ds3trc"
	"tinycore-go/errcode"
	"tinycore-go/internal/util"
	"tinycore-go/types"
)

func (s *Service) handleControl(msg *bus.Message) {
	if len(msg.Topic) != len(topicCtrl) {
		s.replyErr(msg, errcode.InvalidTopic)
		return
	}
	verb, _ := msg.Topic[len(msg.Topic)-1].(string)
	s.log.Debugf("imu control %q", verb)

	switch verb {
	case CtrlPedometer, CtrlPullups:
		p, err := decodeEnable(msg.Payload)
		if err != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		if s.dev == nil {
			s.replyErr(msg, errcode.NotInitialised)
			return
		}
		if verb == CtrlPedometer {
			err = s.dev.EnablePedometer(p.Enable)
		} else {
			err = s.dev.EnableI2CMasterPullups(p.Enable)
		}
		if err != nil {
			s.replyErr(msg, codeOf(err))
			return
		}
		if verb == CtrlPedometer {
			s.pedometer = p.Enable
		}
		s.conn.Reply(msg, types.EnableAck{OK: true, Enable: p.Enable}, false)

	case CtrlReadNow:
		if s.dev == nil {
			s.replyErr(msg, errcode.NotInitialised)
			return
		}
		r, err := s.read()
		if err != nil {
			s.replyErr(msg, codeOf(err))
			return
		}
		s.publish(r)
		s.conn.Reply(msg, types.ReadNowReply{OK: true, Accel: r.accel, Gyro: r.gyro, Temp: r.temp, Steps: r.steps}, false)

	case CtrlResetSteps:
		if s.dev == nil {
			s.replyErr(msg, errcode.NotInitialised)
			return
		}
		if err := s.dev.ResetPedometer(); err != nil {
			s.replyErr(msg, codeOf(err))
			return
		}
		s.conn.Reply(msg, types.OKReply{OK: true}, false)

	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

func decodeEnable(p any) (types.Enable, error) {
	switch v := p.(type) {
	case types.Enable:
		return v, nil
	case bool:
		return types.Enable{Enable: v}, nil
	case nil:
		return types.Enable{}, errcode.InvalidPayload
	}
	var e types.Enable
	err := util.DecodeJSON(p, &e)
	return e, err
}

func (s *Service) replyErr(msg *bus.Message, code errcode.Code) {
	s.conn.Reply(msg, types.ErrorReply{OK: false, Error: string(code)}, false)
}

// codeOf maps driver sentinels first and defers to errcode for the rest.
func codeOf(err error) errcode.Code {
	switch {
	case err == nil:
		return errcode.OK
	case errors.Is(err, lsm6ds3trc.ErrWrongChip):
		return errcode.WrongChip
	case errors.Is(err, lsm6ds3trc.ErrNotInitialised):
		return errcode.NotInitialised
	case errors.Is(err, lsm6ds3trc.ErrInitialised):
		return errcode.Initialised
	case errors.Is(err, lsm6ds3trc.ErrResetTimeout):
		return errcode.Timeout
	}
	return errcode.MapDriverErr(err)
}

// wrap keeps the cause and tags it with its code.
func wrap(op string, err error) error {
	return &errcode.E{C: codeOf(err), Op: op, Msg: err.Error(), Err: err}
}
