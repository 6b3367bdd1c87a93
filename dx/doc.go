// Package dx assembles dex files from streams of class files and captures dex
// images for inspection.
//
// A Factory wires the pieces together:
//
//	w := dx.Default().NewWriter()
//	if err := w.PutNextClass("com/example/Foo.class"); err != nil {
//		return err
//	}
//	if _, err := w.Write(classBytes); err != nil {
//		return err
//	}
//	if err := w.CloseClass(); err != nil {
//		return err
//	}
//	return w.Flush(out, true)
//
// The Writer moves between two states. PutNextClass opens an entry, Write
// hands it the complete class file and CloseClass closes it again. Calling an
// operation in the wrong state fails with ErrLifecycle and changes nothing.
//
// A class file that cannot be parsed or translated does not stop the batch:
// the Writer reports a *ParseError or *TranslationError to the file's
// dex.ErrorReporter, counts it in Failed and carries on. WriteAll applies the
// same steps to every class member of an Archive such as a jar.
//
// The Reader is the other direction. Capture replaces the reader's buffer with
// everything read from a source and Materialize decodes it with dex.Parse.
//
// Translation is declaration only: classes, fields and method signatures are
// carried over and methods are written without code. A different Translator
// can be supplied with WithTranslator.
package dx
