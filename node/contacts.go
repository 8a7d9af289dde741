package node

import (
	"context"

	"github.com/michcald/loranode/buffer"
	"github.com/michcald/loranode/store"
)

const (
	contactNameLen = 32
	importedName   = "Imported"
)

type contactService struct {
	contacts store.ContactStore
	identity *Identity
}

func (s *contactService) group() Group {
	return Group{
		Name: GroupContact,
		Handlers: map[Command]Handler{
			CmdGetContacts:      s.getContacts,
			CmdAddUpdateContact: s.addUpdateContact,
			CmdRemoveContact:    s.removeContact,
			CmdShareContact:     s.shareContact,
			CmdExportContact:    s.exportContact,
			CmdImportContact:    s.importContact,
		},
	}
}

func (s *contactService) getContacts(ctx context.Context, w Sender, _ *buffer.Reader) error {
	contacts, err := s.contacts.List(ctx)
	if err != nil {
		return err
	}
	for _, c := range contacts {
		bw := buffer.NewWriter(byte(RespContact))
		bw.WriteBytes(c.PublicKey[:])
		bw.WriteString(c.Name)
		if err := w.Send(ctx, bw.Bytes()); err != nil {
			return err
		}
	}
	return w.Send(ctx, []byte{byte(RespEndOfContacts)})
}

func (s *contactService) addUpdateContact(ctx context.Context, w Sender, r *buffer.Reader) error {
	var c store.Contact
	var err error
	if err = r.ReadFull(c.PublicKey[:]); err != nil {
		return err
	}
	if c.Type, err = r.ReadU8(); err != nil {
		return err
	}
	if c.Flags, err = r.ReadU8(); err != nil {
		return err
	}
	if c.OutPathLen, err = r.ReadI8(); err != nil {
		return err
	}
	if err = r.ReadFull(c.OutPath[:]); err != nil {
		return err
	}
	if c.Name, err = r.ReadCString(contactNameLen); err != nil {
		return err
	}
	if c.LastAdvert, err = r.ReadU32(); err != nil {
		return err
	}
	if c.Lat, err = r.ReadU32(); err != nil {
		return err
	}
	if c.Lon, err = r.ReadU32(); err != nil {
		return err
	}

	if err := s.contacts.Put(ctx, c); err != nil {
		return err
	}
	return sendOk(ctx, w)
}

func (s *contactService) removeContact(ctx context.Context, w Sender, r *buffer.Reader) error {
	key, err := readPublicKey(r)
	if err != nil {
		return err
	}
	if err := s.contacts.Remove(ctx, key); err != nil {
		return err
	}
	return sendOk(ctx, w)
}

// shareContact acknowledges a known contact. Sharing over the air is done by
// the mesh layer, so the node only checks the contact exists.
func (s *contactService) shareContact(ctx context.Context, w Sender, r *buffer.Reader) error {
	key, err := readPublicKey(r)
	if err != nil {
		return err
	}
	if _, err := s.contacts.Get(ctx, key); err != nil {
		return err
	}
	return sendOk(ctx, w)
}

// exportContact answers with the contact card for the given key, or the
// node's own card when the body is empty.
func (s *contactService) exportContact(ctx context.Context, w Sender, r *buffer.Reader) error {
	var key store.PublicKey
	var name string
	if r.Len() == 0 {
		p := s.identity.Profile()
		key, name = p.PublicKey, p.Name
	} else {
		var err error
		if key, err = readPublicKey(r); err != nil {
			return err
		}
		c, err := s.contacts.Get(ctx, key)
		if err != nil {
			return err
		}
		name = c.Name
	}

	bw := buffer.NewWriter(byte(RespExportContact))
	bw.WriteBytes(key[:])
	bw.WriteString(name)
	return w.Send(ctx, bw.Bytes())
}

func (s *contactService) importContact(ctx context.Context, w Sender, r *buffer.Reader) error {
	key, err := readPublicKey(r)
	if err != nil {
		return err
	}
	c := store.Contact{PublicKey: key, Name: importedName, OutPathLen: -1}
	if r.Len() >= 4 {
		if c.LastAdvert, err = r.ReadU32(); err != nil {
			return err
		}
	}
	if err := s.contacts.Put(ctx, c); err != nil {
		return err
	}
	return sendOk(ctx, w)
}

func readPublicKey(r *buffer.Reader) (store.PublicKey, error) {
	var key store.PublicKey
	err := r.ReadFull(key[:])
	return key, err
}

func sendOk(ctx context.Context, w Sender) error {
	return w.Send(ctx, []byte{byte(RespOk)})
}
